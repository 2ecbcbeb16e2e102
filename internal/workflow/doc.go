// Package workflow owns workflow definitions and executions.
//
// A workflow moves created → running → completed | failed, or to stopped
// from either active state. Each stage has a StepState that modules update by
// sending step.completed or step.failed to the "workflow" endpoint.
package workflow
