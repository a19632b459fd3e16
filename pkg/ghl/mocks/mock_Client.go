// Package mocks provides test doubles for the ghl client.
package mocks

import (
	"context"

	ghl "github.com/sells-group/lead-webhook/pkg/ghl"
	mock "github.com/stretchr/testify/mock"
)

// MockClient is a mock type for the Client interface.
type MockClient struct {
	mock.Mock
}

// CreateContact provides a mock function with given fields: ctx, req
func (_m *MockClient) CreateContact(ctx context.Context, req ghl.ContactRequest) (*ghl.ContactResponse, error) {
	ret := _m.Called(ctx, req)

	if len(ret) == 0 {
		panic("no return value specified for CreateContact")
	}

	var r0 *ghl.ContactResponse
	var r1 error
	if rf, ok := ret.Get(0).(func(context.Context, ghl.ContactRequest) (*ghl.ContactResponse, error)); ok {
		return rf(ctx, req)
	}
	if rf, ok := ret.Get(0).(func(context.Context, ghl.ContactRequest) *ghl.ContactResponse); ok {
		r0 = rf(ctx, req)
	} else {
		if ret.Get(0) != nil {
			r0 = ret.Get(0).(*ghl.ContactResponse)
		}
	}

	if rf, ok := ret.Get(1).(func(context.Context, ghl.ContactRequest) error); ok {
		r1 = rf(ctx, req)
	} else {
		r1 = ret.Error(1)
	}

	return r0, r1
}

// SearchContactsByEmail provides a mock function with given fields: ctx, email
func (_m *MockClient) SearchContactsByEmail(ctx context.Context, email string) ([]ghl.Contact, error) {
	ret := _m.Called(ctx, email)

	if len(ret) == 0 {
		panic("no return value specified for SearchContactsByEmail")
	}

	var r0 []ghl.Contact
	var r1 error
	if rf, ok := ret.Get(0).(func(context.Context, string) ([]ghl.Contact, error)); ok {
		return rf(ctx, email)
	}
	if rf, ok := ret.Get(0).(func(context.Context, string) []ghl.Contact); ok {
		r0 = rf(ctx, email)
	} else {
		if ret.Get(0) != nil {
			r0 = ret.Get(0).([]ghl.Contact)
		}
	}

	if rf, ok := ret.Get(1).(func(context.Context, string) error); ok {
		r1 = rf(ctx, email)
	} else {
		r1 = ret.Error(1)
	}

	return r0, r1
}

// CreateOpportunity provides a mock function with given fields: ctx, req
func (_m *MockClient) CreateOpportunity(ctx context.Context, req ghl.OpportunityRequest) (*ghl.OpportunityResponse, error) {
	ret := _m.Called(ctx, req)

	if len(ret) == 0 {
		panic("no return value specified for CreateOpportunity")
	}

	var r0 *ghl.OpportunityResponse
	var r1 error
	if rf, ok := ret.Get(0).(func(context.Context, ghl.OpportunityRequest) (*ghl.OpportunityResponse, error)); ok {
		return rf(ctx, req)
	}
	if rf, ok := ret.Get(0).(func(context.Context, ghl.OpportunityRequest) *ghl.OpportunityResponse); ok {
		r0 = rf(ctx, req)
	} else {
		if ret.Get(0) != nil {
			r0 = ret.Get(0).(*ghl.OpportunityResponse)
		}
	}

	if rf, ok := ret.Get(1).(func(context.Context, ghl.OpportunityRequest) error); ok {
		r1 = rf(ctx, req)
	} else {
		r1 = ret.Error(1)
	}

	return r0, r1
}

// NewMockClient creates a new instance of MockClient.
func NewMockClient(t interface {
	mock.TestingT
	Cleanup(func())
}) *MockClient {
	mock := &MockClient{}
	mock.Test(t)

	t.Cleanup(func() { mock.AssertExpectations(t) })

	return mock
}
