package worker

import (
	"encoding/json"
	"io"
	"log/slog"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/erpai/verification-be/internal/domain"
)

func newParserWorker() *Worker {
	return NewWorker(&Config{
		Logger:      slog.New(slog.NewTextHandler(io.Discard, nil)),
		Concurrency: 1,
	})
}

func TestParseTask(t *testing.T) {
	w := newParserWorker()

	body, err := json.Marshal(&domain.PhaseTask{
		RequestID: testRequestID,
		JobNo:     testJobNo,
		Phase:     domain.PhaseClassify,
	})
	require.NoError(t, err)

	task := w.parseTask(amqp.Delivery{Body: body, DeliveryTag: 7})

	require.NotNil(t, task)
	assert.Equal(t, testRequestID, task.RequestID)
	assert.Equal(t, domain.PhaseClassify, task.Phase)
	assert.Equal(t, uint64(7), task.DeliveryTag)
}

func TestParseTaskRejectsMalformed(t *testing.T) {
	w := newParserWorker()

	tests := []struct {
		name string
		body string
	}{
		{name: "not json", body: "{{"},
		{name: "request_id not uuid", body: `{"request_id":"abc","job_no":"J100","phase":1}`},
		{name: "phase out of range", body: `{"request_id":"` + testRequestID + `","job_no":"J100","phase":9}`},
		{name: "zero phase", body: `{"request_id":"` + testRequestID + `","job_no":"J100","phase":0}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			task := w.parseTask(amqp.Delivery{Body: []byte(tt.body)})
			assert.Nil(t, task)
		})
	}
}

func TestTimeoutForPhase(t *testing.T) {
	w := NewWorker(&Config{
		Logger:          slog.New(slog.NewTextHandler(io.Discard, nil)),
		Concurrency:     1,
		PhaseTimeout:    5 * time.Minute,
		AcquireTimeout:  3 * time.Minute,
		ClassifyTimeout: 2 * time.Minute,
	})

	assert.Equal(t, 3*time.Minute, w.timeoutForPhase(domain.PhaseAcquire))
	assert.Equal(t, 2*time.Minute, w.timeoutForPhase(domain.PhaseClassify))

	// Phases without their own deadline fall back to the generic one.
	assert.Equal(t, 5*time.Minute, w.timeoutForPhase(domain.PhaseExtract))
	assert.Equal(t, 5*time.Minute, w.timeoutForPhase(domain.PhaseReconcile))
}
