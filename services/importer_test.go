package services

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/schoolhub-io/schoolhub/model"
)

type MockImportStore struct {
	mock.Mock
}

func (m *MockImportStore) MaxIDN(ctx context.Context, schoolID uint) (int, error) {
	args := m.Called(schoolID)
	return args.Int(0), args.Error(1)
}

func (m *MockImportStore) TakenUsernames(ctx context.Context, usernames []string) (map[string]bool, error) {
	args := m.Called(usernames)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[string]bool), args.Error(1)
}

func (m *MockImportStore) CreateUser(ctx context.Context, user *model.User) error {
	args := m.Called(user)
	return args.Error(0)
}

func TestImportUsers_DuplicateWithinBatch(t *testing.T) {
	store := new(MockImportStore)
	svc := NewImporterServiceWithStore(store)

	store.On("MaxIDN", uint(1)).Return(4, nil).Once()
	store.On("TakenUsernames", []string{"a", "a"}).Return(map[string]bool{}, nil).Once()
	store.On("CreateUser", mock.Anything).Return(nil).Once()

	result, err := svc.ImportUsers(context.Background(), 1, []RawUserInput{
		{Username: "a", FirstName: "A", LastName: "One"},
		{Username: "a", FirstName: "A2", LastName: "Two"},
	})

	require.NoError(t, err)
	require.Len(t, result.Created, 1)
	assert.Equal(t, "a", result.Created[0].Username)
	assert.Equal(t, 5, result.Created[0].IDN)
	assert.Equal(t, "One", result.Created[0].LastName)

	require.Len(t, result.Skipped, 1)
	assert.Equal(t, 1, result.Skipped[0].Index)
	assert.Equal(t, SkipReasonDuplicate, result.Skipped[0].Reason)

	store.AssertExpectations(t)
}

func TestImportUsers_SingleElementEchoesWithoutStorage(t *testing.T) {
	store := new(MockImportStore)
	svc := NewImporterServiceWithStore(store)

	result, err := svc.ImportUsers(context.Background(), 1, []RawUserInput{
		{Username: "Solo", FirstName: "Only", LastName: "Row"},
	})

	require.NoError(t, err)
	require.Len(t, result.Created, 1)
	// The row is echoed back untouched: no idn, no lower-casing, nothing stored
	assert.Equal(t, "Solo", result.Created[0].Username)
	assert.Equal(t, 0, result.Created[0].IDN)
	assert.Zero(t, result.Created[0].ID)
	assert.Empty(t, result.Skipped)

	store.AssertNotCalled(t, "MaxIDN", mock.Anything)
	store.AssertNotCalled(t, "TakenUsernames", mock.Anything)
	store.AssertNotCalled(t, "CreateUser", mock.Anything)
}

func TestImportUsers_EmptyBatch(t *testing.T) {
	store := new(MockImportStore)
	svc := NewImporterServiceWithStore(store)

	result, err := svc.ImportUsers(context.Background(), 1, nil)

	require.NoError(t, err)
	assert.Empty(t, result.Created)
	assert.Empty(t, result.Skipped)
	store.AssertNotCalled(t, "MaxIDN", mock.Anything)
}

func TestImportUsers_InvalidRowDoesNotConsumeIDN(t *testing.T) {
	store := new(MockImportStore)
	svc := NewImporterServiceWithStore(store)

	store.On("MaxIDN", uint(3)).Return(10, nil).Once()
	store.On("TakenUsernames", []string{"valid", "broken", "valid2"}).
		Return(map[string]bool{}, nil).Once()
	store.On("CreateUser", mock.Anything).Return(nil).Twice()

	result, err := svc.ImportUsers(context.Background(), 3, []RawUserInput{
		{Username: "valid", FirstName: "First", LastName: "User"},
		{Username: "broken", FirstName: "No", LastName: ""},
		{Username: "valid2", FirstName: "Second", LastName: "User"},
	})

	require.NoError(t, err)
	require.Len(t, result.Created, 2)
	assert.Equal(t, 11, result.Created[0].IDN)
	assert.Equal(t, 12, result.Created[1].IDN)

	require.Len(t, result.Skipped, 1)
	assert.Equal(t, 1, result.Skipped[0].Index)
	assert.Equal(t, SkipReasonMissingField, result.Skipped[0].Reason)

	store.AssertExpectations(t)
}

func TestImportUsers_PersistenceFailureAbortsBatch(t *testing.T) {
	store := new(MockImportStore)
	svc := NewImporterServiceWithStore(store)

	store.On("MaxIDN", uint(1)).Return(0, nil).Once()
	store.On("TakenUsernames", mock.Anything).Return(map[string]bool{}, nil).Once()
	store.On("CreateUser", mock.Anything).Return(nil).Once()
	store.On("CreateUser", mock.Anything).Return(errors.New("connection reset")).Once()

	result, err := svc.ImportUsers(context.Background(), 1, []RawUserInput{
		{Username: "one", FirstName: "User", LastName: "One"},
		{Username: "two", FirstName: "User", LastName: "Two"},
		{Username: "three", FirstName: "User", LastName: "Three"},
	})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection reset")

	// The first row made it in before the failure; the third never ran
	require.Len(t, result.Created, 1)
	assert.Equal(t, "one", result.Created[0].Username)
	store.AssertNumberOfCalls(t, "CreateUser", 2)
}

func TestImportUsers_ExistingUsernameSkipped(t *testing.T) {
	store := new(MockImportStore)
	svc := NewImporterServiceWithStore(store)

	store.On("MaxIDN", uint(1)).Return(7, nil).Once()
	store.On("TakenUsernames", []string{"taken", "fresh"}).
		Return(map[string]bool{"taken": true}, nil).Once()
	store.On("CreateUser", mock.Anything).Return(nil).Once()

	result, err := svc.ImportUsers(context.Background(), 1, []RawUserInput{
		{Username: "taken", FirstName: "Already", LastName: "There"},
		{Username: "fresh", FirstName: "Brand", LastName: "New"},
	})

	require.NoError(t, err)
	require.Len(t, result.Created, 1)
	assert.Equal(t, "fresh", result.Created[0].Username)
	assert.Equal(t, 8, result.Created[0].IDN)

	require.Len(t, result.Skipped, 1)
	assert.Equal(t, SkipReasonDuplicate, result.Skipped[0].Reason)

	store.AssertExpectations(t)
}

func TestImportUsers_NormalizesUsernames(t *testing.T) {
	store := new(MockImportStore)
	svc := NewImporterServiceWithStore(store)

	store.On("MaxIDN", uint(1)).Return(0, nil).Once()
	store.On("TakenUsernames", []string{"mixedcase", "spaced"}).
		Return(map[string]bool{}, nil).Once()

	var created []model.User
	store.On("CreateUser", mock.Anything).Run(func(args mock.Arguments) {
		created = append(created, *args.Get(0).(*model.User))
	}).Return(nil).Twice()

	result, err := svc.ImportUsers(context.Background(), 1, []RawUserInput{
		{Username: "MixedCase", FirstName: "Mixed", LastName: "Case"},
		{Username: "  Spaced  ", FirstName: "Trimmed", LastName: "Down"},
	})

	require.NoError(t, err)
	require.Len(t, result.Created, 2)
	assert.Equal(t, "mixedcase", created[0].Username)
	assert.Equal(t, "spaced", created[1].Username)

	// Imported rows always come in as students
	assert.True(t, created[0].IsStudent)
	assert.False(t, created[0].IsAdmin)
	assert.False(t, created[0].IsInstructor)
}

func TestImportUsers_ProgressCallback(t *testing.T) {
	store := new(MockImportStore)
	svc := NewImporterServiceWithStore(store)

	store.On("MaxIDN", uint(1)).Return(0, nil).Once()
	store.On("TakenUsernames", mock.Anything).Return(map[string]bool{}, nil).Once()
	store.On("CreateUser", mock.Anything).Return(nil).Twice()

	var calls [][4]int
	svc.OnProgress = func(processed, total, created, skipped int) {
		calls = append(calls, [4]int{processed, total, created, skipped})
	}

	_, err := svc.ImportUsers(context.Background(), 1, []RawUserInput{
		{Username: "one", FirstName: "User", LastName: "One"},
		{Username: "", FirstName: "No", LastName: "Name"},
		{Username: "two", FirstName: "User", LastName: "Two"},
	})

	require.NoError(t, err)
	require.Len(t, calls, 3)
	assert.Equal(t, [4]int{1, 3, 1, 0}, calls[0])
	assert.Equal(t, [4]int{2, 3, 1, 1}, calls[1])
	assert.Equal(t, [4]int{3, 3, 2, 1}, calls[2])
}
