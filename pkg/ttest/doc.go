// Package ttest provides testing helpers for tether components.
//
// The package mounts components under a hand-driven scope so tests can
// step through the render, commit, and effect phases one at a time and
// write into the gaps between them.
//
// # Quick Start
//
//	func TestCounter(t *testing.T) {
//	    count := tether.New(0)
//	    m := ttest.MountAndSettle(func() string {
//	        v, _ := tether.UseStore(count)
//	        return fmt.Sprintf("Count: %d", v)
//	    })
//	    defer m.Unmount()
//
//	    ttest.ExpectContains(t, m, "Count: 0")
//
//	    count.Set(5)
//	    m.Settle()
//	    ttest.ExpectContains(t, m, "Count: 5")
//	}
//
// # Testing the Mount Window
//
// Mount renders without running effects, which reproduces the moment
// where a component has read a store but is not yet subscribed to it.
// Writes landed in that window must still reach the component once it
// commits:
//
//	m := ttest.Mount(view)
//	count.Set(5)    // no subscription exists yet
//	m.RunEffects()  // commit; the write is detected here
//	m.Settle()
//	ttest.ExpectContains(t, m, "5")
//
// # Render Counting
//
// Renders counts every pass including the mount, so assertions catch
// both missed updates and redundant work:
//
//	count.Set(1)
//	count.Set(2)
//	count.Set(3)
//	m.Settle()
//	ttest.ExpectRenders(t, m, 2) // mount + one coalesced re-render
package ttest
