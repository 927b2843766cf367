package memory_test

import (
	"testing"

	"github.com/mnorrsken/kvshim/driver"
	"github.com/mnorrsken/kvshim/driver/drivertest"
	"github.com/mnorrsken/kvshim/driver/memory"
)

func TestConformance(t *testing.T) {
	drivertest.Run(t, func(testing.TB) driver.Driver {
		return memory.New()
	})
}
