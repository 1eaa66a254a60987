package testutil

import (
	"context"

	"github.com/hupe1980/prospectmesh/core"
	"github.com/stretchr/testify/mock"
)

// MockSearch is a testify mock of core.Search and core.ContactFinder.
type MockSearch struct {
	mock.Mock
}

// Query implements core.Search.
func (m *MockSearch) Query(ctx context.Context, q string, limit int) ([]core.SearchResult, error) {
	args := m.Called(ctx, q, limit)
	res, _ := args.Get(0).([]core.SearchResult)
	return res, args.Error(1)
}

// FindContacts implements core.ContactFinder.
func (m *MockSearch) FindContacts(ctx context.Context, c core.Company) ([]core.Contact, error) {
	args := m.Called(ctx, c)
	res, _ := args.Get(0).([]core.Contact)
	return res, args.Error(1)
}

// MockEmail is a testify mock of core.Email.
type MockEmail struct {
	mock.Mock
}

// Send implements core.Email.
func (m *MockEmail) Send(ctx context.Context, req core.SendRequest) (core.SendReceipt, error) {
	args := m.Called(ctx, req)
	res, _ := args.Get(0).(core.SendReceipt)
	return res, args.Error(1)
}

// Thread implements core.Email.
func (m *MockEmail) Thread(ctx context.Context, prospectID string) (*core.Thread, error) {
	args := m.Called(ctx, prospectID)
	res, _ := args.Get(0).(*core.Thread)
	return res, args.Error(1)
}

// MockCalendar is a testify mock of core.Calendar.
type MockCalendar struct {
	mock.Mock
}

// SuggestSlots implements core.Calendar.
func (m *MockCalendar) SuggestSlots(ctx context.Context, prospectID string) ([]core.Slot, error) {
	args := m.Called(ctx, prospectID)
	res, _ := args.Get(0).([]core.Slot)
	return res, args.Error(1)
}

// GenerateICS implements core.Calendar.
func (m *MockCalendar) GenerateICS(ctx context.Context, summary string, slot core.Slot) (string, error) {
	args := m.Called(ctx, summary, slot)
	return args.String(0), args.Error(1)
}

var (
	_ core.Search        = (*MockSearch)(nil)
	_ core.ContactFinder = (*MockSearch)(nil)
	_ core.Email         = (*MockEmail)(nil)
	_ core.Calendar      = (*MockCalendar)(nil)
)
