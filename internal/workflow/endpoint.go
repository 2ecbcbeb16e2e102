package workflow

import (
	"context"

	"github.com/Iron-Ham/mplp/internal/errors"
	"github.com/Iron-Ham/mplp/internal/protocol"
)

// EndpointName is the coordination name modules report step results to.
const EndpointName = "workflow"

// Message types accepted by ReceiveMessage.
const (
	MsgStepCompleted = "step.completed"
	MsgStepFailed    = "step.failed"
	MsgStepAck       = "step.ack"
)

// ReceiveMessage accepts step reports from modules. The stage defaults to
// the sending module and may be overridden by payload["stage"]; a failure
// reason is read from payload["error"].
func (m *Manager) ReceiveMessage(ctx context.Context, source string, msg protocol.Message) (*protocol.Message, error) {
	if source != "" {
		msg.Source = source
	}
	var status StepStatus
	switch msg.Type {
	case MsgStepCompleted:
		status = StepCompleted
	case MsgStepFailed:
		status = StepFailed
	default:
		return nil, errors.NewValidationError("unsupported message type").WithField("type").WithValue(msg.Type)
	}
	if msg.WorkflowID == "" {
		return nil, errors.NewValidationError("step report without workflow id").WithField("workflow_id")
	}

	stage := source
	if s, ok := msg.Payload["stage"].(string); ok && s != "" {
		stage = s
	}
	errMsg, _ := msg.Payload["error"].(string)

	if err := m.RecordStep(ctx, msg.WorkflowID, stage, status, errMsg); err != nil {
		return nil, err
	}
	return msg.Reply(EndpointName, MsgStepAck, map[string]any{"stage": stage}), nil
}

var _ protocol.Endpoint = (*Manager)(nil)
