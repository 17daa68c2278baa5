package models

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindForStatus(t *testing.T) {
	tests := []struct {
		status int
		want   ErrorKind
	}{
		{http.StatusBadRequest, KindClientInput},
		{http.StatusNotFound, KindClientInput},
		{http.StatusConflict, KindClientInput},
		{http.StatusTooManyRequests, KindClientInput},
		{http.StatusInternalServerError, KindServer},
		{http.StatusBadGateway, KindServer},
		{0, KindServer},
	}
	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			assert.Equal(t, tt.want, KindForStatus(tt.status))
		})
	}
}

func TestConflictIsClientInput(t *testing.T) {
	err := NewOperationError(http.StatusConflict, "user already exists", nil)

	assert.True(t, err.IsClientInput())
	assert.True(t, err.IsConflict())
	assert.Equal(t, "409", err.MessageKey())

	assert.False(t, NewOperationError(http.StatusBadRequest, "bad", nil).IsConflict())
}
