package appointment

// legalTransitions maps a current status to the successors each role may
// select. Terminal statuses have no entry, so anything out of them fails.
var legalTransitions = map[Status]map[Status]Role{
	StatusPending: {
		StatusAccepted:         RoleDoctor,
		StatusConfirmed:        RoleDoctor,
		StatusCancelled:        RoleDoctor,
		StatusPatientCancelled: RolePatient,
	},
	StatusAccepted: {
		StatusCompleted:        RoleDoctor,
		StatusCancelled:        RoleDoctor,
		StatusPatientCancelled: RolePatient,
	},
	StatusConfirmed: {
		StatusCompleted:        RoleDoctor,
		StatusCancelled:        RoleDoctor,
		StatusPatientCancelled: RolePatient,
	},
}

// CanTransition reports whether role may move an appointment from one
// status to another.
func CanTransition(from, to Status, role Role) bool {
	successors, ok := legalTransitions[from]
	if !ok {
		return false
	}
	required, ok := successors[to]
	return ok && required == role
}
