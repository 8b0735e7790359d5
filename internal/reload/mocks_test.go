package reload

import (
	"context"
	"reflect"

	"go.uber.org/mock/gomock"

	"github.com/raw-labs/mxcp/internal/endpoint"
	"github.com/raw-labs/mxcp/internal/sqlsession"
)

// MockConfigProvider is a mockgen-style hand-written mock for ConfigProvider,
// following the recorder pattern go.uber.org/mock/mockgen generates
// (NewMock*, EXPECT(), per-method *Call recorders) so reload_test.go can
// assert step 3's "re-resolve external references" call without a real
// secret store.
type MockConfigProvider struct {
	ctrl     *gomock.Controller
	recorder *MockConfigProviderMockRecorder
}

type MockConfigProviderMockRecorder struct {
	mock *MockConfigProvider
}

func NewMockConfigProvider(ctrl *gomock.Controller) *MockConfigProvider {
	m := &MockConfigProvider{ctrl: ctrl}
	m.recorder = &MockConfigProviderMockRecorder{m}
	return m
}

func (m *MockConfigProvider) EXPECT() *MockConfigProviderMockRecorder {
	return m.recorder
}

func (m *MockConfigProvider) ResolveSessionConfig(ctx context.Context) (sqlsession.Config, error) {
	m.ctrl.T.Helper()
	ret := m.ctrl.Call(m, "ResolveSessionConfig", ctx)
	cfg, _ := ret[0].(sqlsession.Config)
	err, _ := ret[1].(error)
	return cfg, err
}

func (mr *MockConfigProviderMockRecorder) ResolveSessionConfig(ctx any) *gomock.Call {
	mr.mock.ctrl.T.Helper()
	return mr.mock.ctrl.RecordCallWithMethodType(mr.mock, "ResolveSessionConfig", reflect.TypeOf((*MockConfigProvider)(nil).ResolveSessionConfig), ctx)
}

// MockEndpointLoader mocks EndpointLoader for the RefreshEndpoints
// extension path (spec §9 Open Question 2).
type MockEndpointLoader struct {
	ctrl     *gomock.Controller
	recorder *MockEndpointLoaderMockRecorder
}

type MockEndpointLoaderMockRecorder struct {
	mock *MockEndpointLoader
}

func NewMockEndpointLoader(ctrl *gomock.Controller) *MockEndpointLoader {
	m := &MockEndpointLoader{ctrl: ctrl}
	m.recorder = &MockEndpointLoaderMockRecorder{m}
	return m
}

func (m *MockEndpointLoader) EXPECT() *MockEndpointLoaderMockRecorder {
	return m.recorder
}

func (m *MockEndpointLoader) LoadAndCompile() (*endpoint.LoadResult, error) {
	m.ctrl.T.Helper()
	ret := m.ctrl.Call(m, "LoadAndCompile")
	res, _ := ret[0].(*endpoint.LoadResult)
	err, _ := ret[1].(error)
	return res, err
}

func (mr *MockEndpointLoaderMockRecorder) LoadAndCompile() *gomock.Call {
	mr.mock.ctrl.T.Helper()
	return mr.mock.ctrl.RecordCallWithMethodType(mr.mock, "LoadAndCompile", reflect.TypeOf((*MockEndpointLoader)(nil).LoadAndCompile))
}
