package domain

// SubmitRequest is the input of a task submission.
type SubmitRequest struct {
	// ProgramID selects a previously uploaded program.
	ProgramID string
	// InputPayload is written verbatim to the task's input file.
	InputPayload []byte
	// Callback is an optional absolute http(s) URL notified on completion.
	Callback string
	// Env holds environment overrides passed to the prover.
	Env map[string]string
}

// Validate checks the request before any state is touched.
func (r *SubmitRequest) Validate() error {
	if r.ProgramID == "" {
		return NewValidationError("program_id", "is required", ErrValidation)
	}
	if err := ValidateCallback(r.Callback); err != nil {
		return NewValidationError("callback", "must be an absolute http(s) URL", err)
	}
	if err := ValidateEnv(r.Env); err != nil {
		return NewValidationError("env", err.Error(), err)
	}
	return nil
}

// UploadProgramRequest is the metadata accompanying a program upload.
type UploadProgramRequest struct {
	Prover  string
	Name    string
	Version string
	Desc    string
}

// Validate checks that a prover kind was given.
func (r *UploadProgramRequest) Validate() error {
	if r.Prover == "" {
		return NewValidationError("prover", "is required", ErrValidation)
	}
	return nil
}
