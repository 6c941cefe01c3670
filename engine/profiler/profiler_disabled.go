//go:build !profile

package profiler

func Init(capacity int) {}

func Enabled() bool { return false }

func Start(name string) func() { return func() {} }

func Summary() []ScopeStats { return nil }

func Dump(path string) error { return ErrDisabled }
