package testutil

import "testing"

// Given, When, Then and And nest subtests so a flow test reads as the
// scenario it checks.
func Given(t *testing.T, precondition string, fn func(t *testing.T)) {
	t.Helper()
	t.Run("given "+precondition, fn)
}

func When(t *testing.T, action string, fn func(t *testing.T)) {
	t.Helper()
	t.Run("when "+action, fn)
}

func Then(t *testing.T, outcome string, fn func(t *testing.T)) {
	t.Helper()
	t.Run("then "+outcome, fn)
}

func And(t *testing.T, outcome string, fn func(t *testing.T)) {
	t.Helper()
	t.Run("and "+outcome, fn)
}
