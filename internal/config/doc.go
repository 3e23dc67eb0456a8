// Package config provides configuration parsing for tether projects.
//
// The configuration is stored in tether.json at the project root.
// This package handles loading, saving, and validating configuration.
//
// # Configuration File Structure
//
//	{
//	  "name": "my-app",
//	  "server": {
//	    "host": "localhost",
//	    "port": 3000,
//	    "metricsAddr": "localhost:9090"
//	  },
//	  "persist": {
//	    "backend": "file",
//	    "dir": "./state"
//	  },
//	  "log": {
//	    "level": "info",
//	    "format": "text"
//	  },
//	  "session": {
//	    "eventQueue": 256,
//	    "heartbeat": "30s"
//	  }
//	}
//
// # Usage
//
//	cfg, err := config.Load(".")
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	fmt.Println("Addr:", cfg.Addr())
package config
