package testutil

import (
	"context"

	"github.com/stretchr/testify/mock"
)

// PublisherMock is a testify mock satisfying events.Publisher.
type PublisherMock struct {
	mock.Mock
}

func (m *PublisherMock) Publish(ctx context.Context, routingKey string, event any) error {
	args := m.Called(ctx, routingKey, event)
	return args.Error(0)
}

func (m *PublisherMock) Close() error {
	return m.Called().Error(0)
}

// NewPermissivePublisher returns a mock that accepts any publish.
func NewPermissivePublisher() *PublisherMock {
	p := &PublisherMock{}
	p.On("Publish", mock.Anything, mock.Anything, mock.Anything).Return(nil)
	p.On("Close").Return(nil).Maybe()
	return p
}
