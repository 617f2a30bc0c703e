package logging

import (
	"encoding/json"
	"testing"

	"go.viam.com/test"
)

func TestLevelStrings(t *testing.T) {
	for _, level := range []Level{DEBUG, INFO, WARN, ERROR} {
		serialized := level.String()
		parsed, err := LevelFromString(serialized)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, parsed, test.ShouldEqual, level)
	}

	parsed, err := LevelFromString("warning")
	test.That(t, err, test.ShouldBeNil)
	test.That(t, parsed, test.ShouldEqual, WARN)

	_, err = LevelFromString("nonsense")
	test.That(t, err, test.ShouldNotBeNil)
}

func TestLevelJSONRoundTrip(t *testing.T) {
	type levels struct {
		Debug Level
		Info  Level
		Warn  Level
		Error Level
	}
	in := levels{DEBUG, INFO, WARN, ERROR}
	data, err := json.Marshal(in)
	test.That(t, err, test.ShouldBeNil)

	var out levels
	err = json.Unmarshal(data, &out)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, out, test.ShouldResemble, in)
}
