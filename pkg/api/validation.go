package api

import (
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"

	"github.com/rmax-ai/transformer-puzzle/pkg/puzzle"
)

// validate is a singleton validator instance
var validate *validator.Validate

// Upper bound on concurrent players in one simulation request.
const maxSimulationPlayers = 32

func init() {
	validate = validator.New()
	validate.RegisterStructValidation(commandStructLevel, CommandRequest{})
}

// commandStructLevel enforces the fields each command kind needs.
func commandStructLevel(sl validator.StructLevel) {
	req := sl.Current().Interface().(CommandRequest)
	switch puzzle.CommandKind(req.Kind) {
	case puzzle.CommandPlaceBlock:
		if req.Label == "" {
			sl.ReportError(req.Label, "Label", "label", "required_for", req.Kind)
		}
		if req.At == nil {
			sl.ReportError(req.At, "At", "at", "required_for", req.Kind)
		}
	case puzzle.CommandMoveBlock:
		if req.Block == "" {
			sl.ReportError(req.Block, "Block", "block", "required_for", req.Kind)
		}
		if req.At == nil {
			sl.ReportError(req.At, "At", "at", "required_for", req.Kind)
		}
	case puzzle.CommandConnect:
		if req.From == nil {
			sl.ReportError(req.From, "From", "from", "required_for", req.Kind)
		}
		if req.To == nil {
			sl.ReportError(req.To, "To", "to", "required_for", req.Kind)
		}
	case puzzle.CommandDiscardBlock:
		if req.Block == "" {
			sl.ReportError(req.Block, "Block", "block", "required_for", req.Kind)
		}
	}
}

// ValidateCommandRequest validates a command body.
func ValidateCommandRequest(req *CommandRequest) error {
	if req == nil {
		return errors.New("command request cannot be nil")
	}
	if err := validate.Struct(req); err != nil {
		return formatValidationError(err)
	}
	return nil
}

// ValidateSimulationRequest validates a simulation body, including the
// inline scenario's faults.
func ValidateSimulationRequest(req *SimulationRequest) error {
	if req == nil {
		return errors.New("simulation request cannot be nil")
	}
	if err := validate.Struct(req); err != nil {
		return formatValidationError(err)
	}
	if req.Scenario == nil {
		return nil
	}
	if req.Scenario.Players > maxSimulationPlayers {
		return fmt.Errorf("Players: must not exceed %d", maxSimulationPlayers)
	}
	return req.Scenario.Validate()
}

// formatValidationError converts validator errors to user-friendly messages
func formatValidationError(err error) error {
	var validationErrs validator.ValidationErrors
	if !errors.As(err, &validationErrs) {
		return err
	}

	// Return the first validation error in a user-friendly format
	for _, e := range validationErrs {
		field := e.Field()
		param := e.Param()

		switch e.Tag() {
		case "required":
			return fmt.Errorf("%s: field is required", field)
		case "required_for":
			return fmt.Errorf("%s: field is required for %s", field, param)
		case "required_without":
			return fmt.Errorf("%s: field is required when %s is absent", field, param)
		case "min":
			return fmt.Errorf("%s: must be at least %s", field, param)
		case "max":
			return fmt.Errorf("%s: must not exceed %s", field, param)
		case "oneof":
			return fmt.Errorf("%s: must be one of [%s]", field, param)
		default:
			return fmt.Errorf("%s: validation failed (%s)", field, e.Tag())
		}
	}
	return err
}
