package service

import (
	"context"
	"errors"
	"fmt"

	"fleettrack/internal/core/model"

	"github.com/looplab/fsm"
)

const (
	// EventAssign binds a vehicle to the device. Re-assigning the same
	// vehicle is allowed and only refreshes the display name.
	EventAssign = "assign"
	// EventUnassign releases the vehicle.
	EventUnassign = "unassign"
)

// assignmentMachine drives the assignment status of one record. It is built
// per operation from the record's current status and mutates the record in
// place; the caller persists it.
type assignmentMachine struct {
	*fsm.FSM
	record *model.DeviceRecord
	// guardErr is the reason a guard cancelled the last event.
	guardErr error
}

func newAssignmentMachine(record *model.DeviceRecord) *assignmentMachine {
	m := &assignmentMachine{record: record}

	initial := record.Status
	if initial == "" {
		initial = model.StatusUnassigned
	}

	events := fsm.Events{
		{Name: EventAssign, Src: []string{model.StatusUnassigned, model.StatusAssigned}, Dst: model.StatusAssigned},
		{Name: EventUnassign, Src: []string{model.StatusAssigned}, Dst: model.StatusUnassigned},
	}

	callbacks := fsm.Callbacks{
		"before_" + EventAssign:           m.guardAssign,
		"enter_" + model.StatusAssigned:   m.enterAssigned,
		"enter_" + model.StatusUnassigned: m.enterUnassigned,
	}

	m.FSM = fsm.NewFSM(initial, events, callbacks)
	return m
}

// guardAssign rejects a vehicle change on an assigned record and stages the
// new assignment otherwise.
func (m *assignmentMachine) guardAssign(_ context.Context, e *fsm.Event) {
	vehicleID := e.Args[0].(string)
	displayName := e.Args[1].(string)

	if m.record.Assigned() && m.record.VehicleID != vehicleID {
		m.guardErr = fmt.Errorf("%w: %s holds %s", ErrAlreadyAssigned, m.record.DeviceID, m.record.VehicleID)
		e.Cancel()
		return
	}

	m.record.VehicleID = vehicleID
	if displayName != "" {
		m.record.DisplayName = displayName
	}
}

func (m *assignmentMachine) enterAssigned(_ context.Context, _ *fsm.Event) {
	m.record.Status = model.StatusAssigned
}

func (m *assignmentMachine) enterUnassigned(_ context.Context, _ *fsm.Event) {
	m.record.VehicleID = ""
	m.record.Status = model.StatusUnassigned
}

func (m *assignmentMachine) assign(ctx context.Context, vehicleID, displayName string) error {
	err := m.Event(ctx, EventAssign, vehicleID, displayName)
	if m.guardErr != nil {
		return m.guardErr
	}
	if isTransitionError(err) {
		return err
	}
	m.record.Status = model.StatusAssigned
	return nil
}

// unassign releases the vehicle. Unassigning an unassigned record is a no-op.
func (m *assignmentMachine) unassign(ctx context.Context) error {
	if !m.Can(EventUnassign) {
		return nil
	}
	if err := m.Event(ctx, EventUnassign); isTransitionError(err) {
		return err
	}
	return nil
}

// isTransitionError filters out the fsm results that only report that the
// state did not change.
func isTransitionError(err error) bool {
	if err == nil {
		return false
	}

	var noTransition fsm.NoTransitionError
	var canceled fsm.CanceledError
	if errors.As(err, &noTransition) || errors.As(err, &canceled) {
		return false
	}
	return true
}
