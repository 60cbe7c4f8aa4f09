package metrics_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	model "github.com/tigerroll/tripco2/pkg/batch/core/domain/model"
	"github.com/tigerroll/tripco2/pkg/batch/core/metrics"
)

type mockRecorder struct {
	metrics.NoOpMetricRecorder
	mock.Mock
}

func (m *mockRecorder) RecordRows(ctx context.Context, stage, service string, year int, count int64) {
	m.Called(stage, service, year, count)
}

func (m *mockRecorder) RecordStageEnd(ctx context.Context, stage *model.StageExecution) {
	m.Called(stage.StageName)
}

func TestCompositeRecorder_FansOut(t *testing.T) {
	a, b := &mockRecorder{}, &mockRecorder{}
	for _, m := range []*mockRecorder{a, b} {
		m.On("RecordRows", "clean", "yellow", 2019, int64(98)).Once()
		m.On("RecordStageEnd", "clean").Once()
	}

	rec := metrics.NewCompositeRecorder(a, nil, b)
	ctx := context.Background()
	rec.RecordRows(ctx, "clean", "yellow", 2019, 98)
	run := model.NewRunExecution(2019, 2019, nil)
	rec.RecordStageEnd(ctx, model.NewStageExecution(run, "clean", "yellow"))
	// Calls not overridden by the mock fall through to the embedded no-op.
	rec.RecordDuration(ctx, "query", time.Second, nil)

	a.AssertExpectations(t)
	b.AssertExpectations(t)
}

func TestNoOpTracer_ReturnsSameContext(t *testing.T) {
	ctx := context.Background()
	got, end := metrics.NewNoOpTracer().StartRunSpan(ctx, model.NewRunExecution(2019, 2019, nil))
	assert.Equal(t, ctx, got)
	end()
}
