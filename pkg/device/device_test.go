package device

import (
	"testing"

	"go.uber.org/zap/zaptest"
	"go.viam.com/test"

	"cam2-shutter/pkg/device/sim"
)

func TestOpenSim(t *testing.T) {
	dev, err := Open(Sim, Options{FPS: 50, JPEGQuality: 70}, zaptest.NewLogger(t).Sugar())
	test.That(t, err, test.ShouldBeNil)
	_, ok := dev.(*sim.Device)
	test.That(t, ok, test.ShouldBeTrue)
}
