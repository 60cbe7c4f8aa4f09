package loader

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tigerroll/tripco2/internal/domain/service"
	"github.com/tigerroll/tripco2/internal/domain/trip"
	"github.com/tigerroll/tripco2/internal/tripfixture"
	"github.com/tigerroll/tripco2/pkg/batch/support/util/logger"
)

func TestPartition_CloseFailureLogsToStageLogger(t *testing.T) {
	yellow := service.Yellow()
	path := tripfixture.WritePartition(t, t.TempDir(), yellow, 2019, 1, tripfixture.Valid(2019, 1, 2))
	var out bytes.Buffer

	p, err := openPartition(path, trip.Columns(yellow), time.UTC, logger.New(&out, logger.LevelDebug).With(moduleName))
	require.NoError(t, err)
	rows, err := p.next(10)
	require.NoError(t, err)
	assert.Len(t, rows, 2)

	require.NoError(t, p.file.Close())
	p.close()
	assert.Contains(t, out.String(), "[DEBUG] loader failed to close partition")
}
