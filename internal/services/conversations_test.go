package services

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/conversa/conversa-backend/internal/errdefs"
	"github.com/conversa/conversa-backend/internal/repository"
)

func newTestConversationService() (*ConversationService, *memConversationRepo, *memMessageRepo) {
	conversations := newMemConversationRepo()
	messages := newMemMessageRepo()
	return NewConversationService(conversations, messages, testLogger()), conversations, messages
}

func TestResolveCreatesLazily(t *testing.T) {
	svc, _, _ := newTestConversationService()
	owner := uuid.New()

	conversation, created, err := svc.Resolve(context.Background(), owner, "", "Hi there, how do goroutines work?")
	require.NoError(t, err)
	assert.True(t, created)
	assert.NotEmpty(t, conversation.ID)
	assert.Equal(t, owner, conversation.OwnerID)
	assert.Equal(t, "Hi there, how do goroutines work?", conversation.Title)
}

func TestResolveTruncatesLongTitle(t *testing.T) {
	svc, _, _ := newTestConversationService()

	long := "This is an extremely long first message that should not become the title verbatim"
	conversation, _, err := svc.Resolve(context.Background(), uuid.New(), "", long)
	require.NoError(t, err)
	assert.Less(t, len([]rune(conversation.Title)), len([]rune(long)))
}

func TestResolveOwnershipFoldedIntoExistence(t *testing.T) {
	svc, _, _ := newTestConversationService()
	owner := uuid.New()
	stranger := uuid.New()

	conversation, _, err := svc.Resolve(context.Background(), owner, "", "mine")
	require.NoError(t, err)

	_, _, missingErr := svc.Resolve(context.Background(), owner, uuid.New().String(), "")
	_, _, strangerErr := svc.Resolve(context.Background(), stranger, conversation.ID, "")

	require.Error(t, missingErr)
	require.Error(t, strangerErr)
	assert.True(t, errdefs.IsNotFound(missingErr))
	assert.True(t, errdefs.IsNotFound(strangerErr))
	// Indistinguishable from the caller's perspective.
	assert.Equal(t, missingErr.Error(), strangerErr.Error())
}

func TestAppendRejectsEmptyContent(t *testing.T) {
	svc, _, _ := newTestConversationService()

	_, err := svc.Append(context.Background(), uuid.New().String(), repository.RoleUser, "", nil, "")
	require.Error(t, err)
	assert.True(t, errdefs.IsValidation(err))
}

func TestConcurrentAppendsKeepStrictOrder(t *testing.T) {
	svc, _, messages := newTestConversationService()
	owner := uuid.New()

	conversation, _, err := svc.Resolve(context.Background(), owner, "", "race me")
	require.NoError(t, err)

	const writers = 32
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := svc.Append(context.Background(), conversation.ID, repository.RoleUser, fmt.Sprintf("message %d", i), nil, "")
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	all, err := messages.ListByConversation(context.Background(), conversation.ID)
	require.NoError(t, err)
	require.Len(t, all, writers)

	seen := make(map[int64]bool)
	var last int64
	for _, message := range all {
		assert.Greater(t, message.Seq, last, "sequence must be strictly increasing")
		assert.False(t, seen[message.Seq], "sequence %d assigned twice", message.Seq)
		seen[message.Seq] = true
		last = message.Seq
	}
}

func TestHistoryBoundsWindowOldestFirst(t *testing.T) {
	svc, _, _ := newTestConversationService()
	owner := uuid.New()

	conversation, _, err := svc.Resolve(context.Background(), owner, "", "windowing")
	require.NoError(t, err)

	for i := 0; i < 10; i++ {
		_, err := svc.Append(context.Background(), conversation.ID, repository.RoleUser, fmt.Sprintf("m%d", i), nil, "")
		require.NoError(t, err)
	}

	history, err := svc.History(context.Background(), conversation.ID, 4)
	require.NoError(t, err)
	require.Len(t, history, 4)
	assert.Equal(t, "m6", history[0].Content)
	assert.Equal(t, "m9", history[3].Content)
}

func TestDeleteRequiresOwnership(t *testing.T) {
	svc, _, _ := newTestConversationService()
	owner := uuid.New()

	conversation, _, err := svc.Resolve(context.Background(), owner, "", "to delete")
	require.NoError(t, err)

	err = svc.Delete(context.Background(), uuid.New(), conversation.ID)
	require.Error(t, err)
	assert.True(t, errdefs.IsNotFound(err))

	require.NoError(t, svc.Delete(context.Background(), owner, conversation.ID))
}

func TestParseRole(t *testing.T) {
	tests := []struct {
		input string
		want  repository.Role
		ok    bool
	}{
		{"user", repository.RoleUser, true},
		{"assistant", repository.RoleAssistant, true},
		{"system", repository.RoleSystem, true},
		{"bot", "", false},
		{"", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			role, err := repository.ParseRole(tt.input)
			if tt.ok {
				require.NoError(t, err)
				assert.Equal(t, tt.want, role)
			} else {
				require.Error(t, err)
				assert.True(t, errdefs.IsValidation(err))
			}
		})
	}
}
