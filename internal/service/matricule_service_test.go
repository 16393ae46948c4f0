package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type mockMatriculeCounter struct {
	counts map[string]int
	asked  []string
}

func (m *mockMatriculeCounter) CountByMatriculePrefix(ctx context.Context, prefix string) (int, error) {
	m.asked = append(m.asked, prefix)
	return m.counts[prefix], nil
}

func fixedClock(year int) func() time.Time {
	return func() time.Time {
		return time.Date(year, time.October, 1, 8, 0, 0, 0, time.UTC)
	}
}

func TestMatriculeGenerate(t *testing.T) {
	counter := &mockMatriculeCounter{counts: map[string]int{"SN24D": 2}}
	svc := NewMatriculeService(counter, zap.NewNop())
	svc.now = fixedClock(2024)

	matricule, err := svc.Generate(context.Background(), "Diop")
	require.NoError(t, err)
	assert.Equal(t, "SN24D003", matricule)
	assert.Equal(t, []string{"SN24D"}, counter.asked)
}

func TestMatriculeGenerateFirstOfInitial(t *testing.T) {
	counter := &mockMatriculeCounter{counts: map[string]int{}}
	svc := NewMatriculeService(counter, zap.NewNop())
	svc.now = fixedClock(2025)

	matricule, err := svc.Generate(context.Background(), "ba")
	require.NoError(t, err)
	assert.Equal(t, "SN25B001", matricule)
}

func TestMatriculeGenerateEmptySurname(t *testing.T) {
	svc := NewMatriculeService(&mockMatriculeCounter{}, zap.NewNop())

	_, err := svc.Generate(context.Background(), "   ")
	require.Error(t, err)
}

func TestIsValidMatricule(t *testing.T) {
	assert.True(t, IsValidMatricule("SN24D001"))
	assert.True(t, IsValidMatricule("SN99Z999"))
	assert.False(t, IsValidMatricule("sn24d001"))
	assert.False(t, IsValidMatricule("SN24D01"))
	assert.False(t, IsValidMatricule("SN2D001"))
	assert.False(t, IsValidMatricule("XX24D001"))
	assert.False(t, IsValidMatricule(""))
}
