package errors

// ErrorTemplate defines a registered error type.
type ErrorTemplate struct {
	Category Category
	Message  string
	Detail   string
	DocURL   string
}

// registry maps error codes to their templates.
var registry = map[string]ErrorTemplate{
	// ============================================
	// Runtime Errors (E001-E019)
	// ============================================

	"E001": {
		Category: CategoryRuntime,
		Message:  "Hook called outside component render",
		Detail:   "Hooks like UseState, UseStore, and UseEffect only work inside a component render driven by a scope.",
		DocURL:   "https://tether-go.dev/docs/errors/E001",
	},
	"E002": {
		Category: CategoryRuntime,
		Message:  "Hook order changed between renders",
		Detail:   "A component must call the same hooks in the same order on every render. Do not call hooks inside conditionals or loops.",
		DocURL:   "https://tether-go.dev/docs/errors/E002",
	},
	"E003": {
		Category: CategoryRuntime,
		Message:  "Binding hook requires a store",
		Detail:   "UseStore, UseStoreWhen, and UseSetter need a non-nil store handle created with tether.New or persist.New.",
		DocURL:   "https://tether-go.dev/docs/errors/E003",
	},
	"E004": {
		Category: CategoryRuntime,
		Message:  "Action handler panicked",
		Detail:   "A UseAction handler panicked while processing a client event. The session survives and the panic is logged with a stack trace.",
		DocURL:   "https://tether-go.dev/docs/errors/E004",
	},
	"E005": {
		Category: CategoryRuntime,
		Message:  "Event queue full",
		Detail:   "The session's event buffer is full. The client receives a rate_limited error and the action is dropped.",
		DocURL:   "https://tether-go.dev/docs/errors/E005",
	},

	// ============================================
	// Persistence Errors (E101-E119)
	// ============================================

	"E101": {
		Category: CategoryPersistence,
		Message:  "State backend unavailable",
		Detail:   "No durable backend could be opened. The store keeps working; values live in memory only for this run.",
		DocURL:   "https://tether-go.dev/docs/errors/E101",
	},
	"E102": {
		Category: CategoryPersistence,
		Message:  "Stored state unreadable",
		Detail:   "The persisted bytes could not be decoded. The store falls back to its initial value and the next write overwrites the stored state.",
		DocURL:   "https://tether-go.dev/docs/errors/E102",
	},
	"E103": {
		Category: CategoryPersistence,
		Message:  "State write failed",
		Detail:   "A background write to the backend failed. The in-memory value is unaffected and the value is written again on the next change.",
		DocURL:   "https://tether-go.dev/docs/errors/E103",
	},
	"E104": {
		Category: CategoryPersistence,
		Message:  "State key not found",
		Detail:   "No value is stored under this key.",
		DocURL:   "https://tether-go.dev/docs/errors/E104",
	},
	"E105": {
		Category: CategoryPersistence,
		Message:  "State backend closed",
		Detail:   "The backend has been closed. Reads and writes fail until a new backend is opened.",
		DocURL:   "https://tether-go.dev/docs/errors/E105",
	},

	// ============================================
	// Config Errors (E201-E219)
	// ============================================

	"E201": {
		Category: CategoryConfig,
		Message:  "Config file not found",
		Detail:   "No tether.json was found in this directory or any parent.",
		DocURL:   "https://tether-go.dev/docs/errors/E201",
	},
	"E202": {
		Category: CategoryConfig,
		Message:  "Config file invalid",
		Detail:   "tether.json could not be parsed as JSON.",
		DocURL:   "https://tether-go.dev/docs/errors/E202",
	},
	"E203": {
		Category: CategoryConfig,
		Message:  "Invalid server port",
		Detail:   "Ports must be between 1 and 65535.",
		DocURL:   "https://tether-go.dev/docs/errors/E203",
	},
	"E204": {
		Category: CategoryConfig,
		Message:  "Unknown persistence backend",
		Detail:   "Persist.Backend must be one of: file, sql, redis, s3, memory.",
		DocURL:   "https://tether-go.dev/docs/errors/E204",
	},

	// ============================================
	// CLI Errors (E301-E319)
	// ============================================

	"E301": {
		Category: CategoryCLI,
		Message:  "Missing state key",
		Detail:   "This command needs a state key argument.",
		DocURL:   "https://tether-go.dev/docs/errors/E301",
	},
	"E302": {
		Category: CategoryCLI,
		Message:  "Missing connection string",
		Detail:   "SQL backends need a connection string. Pass --dsn or set Persist.DSN in tether.json.",
		DocURL:   "https://tether-go.dev/docs/errors/E302",
	},
	"E303": {
		Category: CategoryCLI,
		Message:  "Invalid state value",
		Detail:   "State values must be valid JSON.",
		DocURL:   "https://tether-go.dev/docs/errors/E303",
	},
}

// GetAllCodes returns all registered error codes.
func GetAllCodes() []string {
	codes := make([]string, 0, len(registry))
	for code := range registry {
		codes = append(codes, code)
	}
	return codes
}

// GetTemplate returns the template for an error code.
func GetTemplate(code string) (ErrorTemplate, bool) {
	t, ok := registry[code]
	return t, ok
}

// Register adds a new error template to the registry.
func Register(code string, template ErrorTemplate) {
	registry[code] = template
}
