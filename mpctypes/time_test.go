package mpctypes

import (
	"testing"

	"go.viam.com/test"
)

func TestEventKindString(t *testing.T) {
	test.That(t, Interior.String(), test.ShouldEqual, "Interior")
	test.That(t, PreEvent.String(), test.ShouldEqual, "PreEvent")
}
