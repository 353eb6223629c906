package klogging

import "os"

var (
	currentOsProvider OsProvider = &systemOsProvider{}
)

// OsProvider exists so tests can observe a fatal log without the process exiting.
type OsProvider interface {
	Exit(code int)
}

func OsExit(code int) {
	currentOsProvider.Exit(code)
}

type systemOsProvider struct{}

func (provider *systemOsProvider) Exit(code int) {
	os.Exit(code)
}

type MockOsProvider struct {
	ExitCb func(code int)
}

func (provider *MockOsProvider) SetAsDefault() *MockOsProvider {
	currentOsProvider = provider
	return provider
}

func (provider *MockOsProvider) Exit(code int) {
	if provider.ExitCb != nil {
		provider.ExitCb(code)
	}
}
