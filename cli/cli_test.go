package cli

import (
	"io/ioutil"
	"testing"

	. "github.com/smartystreets/goconvey/convey"
)

var (
	// os flag parsing mandates the executable name
	baseArgs = []string{"capsulectl"}
)

func TestMain(t *testing.T) {
	Convey("It should not crash without args", t, func() {
		Main(&Env{}, baseArgs, ioutil.Discard, ioutil.Discard)
	})
}
