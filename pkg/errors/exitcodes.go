package errors

// Process exit codes, one per failure stage. Scripting consumers depend on
// these staying put, so treat the table as append-only.
const (
	ExitOK             = 0
	ExitPreflight      = 2
	ExitConfigRead     = 3
	ExitConfigInvalid  = 4
	ExitEngineInit     = 5
	ExitCapabilityLoad = 6
	ExitMapping        = 7
	ExitRender         = 8
	ExitTransfer       = 9
	ExitPermission     = 10
	ExitStdinRender    = 11
	ExitInterrupt      = 100
)

var exitCodes = map[ErrorCode]int{
	ErrPreflight:            ExitPreflight,
	ErrConfigRead:           ExitConfigRead,
	ErrConfigParse:          ExitConfigRead,
	ErrConfigInvalid:        ExitConfigInvalid,
	ErrEngineInit:           ExitEngineInit,
	ErrCapabilityLoad:       ExitCapabilityLoad,
	ErrMappingResolution:    ExitMapping,
	ErrMultipleSubstitution: ExitMapping,
	ErrExpansionMismatch:    ExitMapping,
	ErrRender:               ExitRender,
	ErrStdinRender:          ExitStdinRender,
	ErrSyncTransfer:         ExitTransfer,
	ErrPermissionApply:      ExitPermission,
}

// ExitCodeFor maps an error to its process exit code. Nil errors map to
// ExitOK; errors without a recognized code exit with ExitPreflight since
// they can only originate before the pipeline proper starts.
func ExitCodeFor(err error) int {
	if err == nil {
		return ExitOK
	}
	if code, ok := exitCodes[GetErrorCode(err)]; ok {
		return code
	}
	return ExitPreflight
}
