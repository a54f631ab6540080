package def

import "fmt"

/*
	ErrConfigParsing is raised when parsing a user-supplied document
	(project spec, build spec, quota spec) hits something that isn't even
	the right shape -- "got number, expected string".  Semantic violations
	("overlapping mounts", "quota scope unknown") are ErrConfigValidation
	instead.
*/
type ErrConfigParsing struct {
	Key         string
	Msg         string
	MustBe      string
	WasActually string
}

func (e ErrConfigParsing) Error() string { return e.Msg }

func NewConfigValTypeError(key, mustBe, wasActually string) error {
	return ErrConfigParsing{
		Key:         key,
		Msg:         fmt.Sprintf("config key %q must be a %s; was %s", key, mustBe, wasActually),
		MustBe:      mustBe,
		WasActually: wasActually,
	}
}

// ErrConfigValidation is raised when a fully-parsed config object or spec
// fails a semantic check.
type ErrConfigValidation struct {
	Key string
	Msg string
}

func (e ErrConfigValidation) Error() string { return e.Msg }
