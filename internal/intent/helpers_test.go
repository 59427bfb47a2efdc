package intent

import (
	"testing"

	"github.com/stretchr/testify/require"

	"enms-voice/internal/common/logger"
	"enms-voice/internal/vocabulary"
)

const testVocabYAML = `
metrics:
  energy:
    - energy
    - consumption
    - usage
    - kwh
  power:
    - power
    - load
    - wattage
  efficiency:
    - efficiency
    - enpi
time_expressions:
  today:
    - today
  yesterday:
    - yesterday
  last_week:
    - last week
  this_month:
    - this month
spoken_numbers:
  one: 1
  two: 2
  three: 3
  four: 4
  five: 5
  ten: 10
energy_sources:
  electricity:
    - electricity
    - electric
  natural_gas:
    - natural gas
    - gas
  steam:
    - steam
`

var testMachines = []string{"Compressor-1", "Compressor-2", "Boiler-1", "Boiler-2", "Chiller-3"}

func newTestStore(t *testing.T, machines ...string) *vocabulary.Store {
	t.Helper()
	store, err := vocabulary.NewFromBytes([]byte(testVocabYAML), logger.NewTestLogger(t))
	require.NoError(t, err)
	if machines == nil {
		machines = testMachines
	}
	if len(machines) > 0 {
		require.NoError(t, store.RefreshMachines(machines))
	}
	return store
}
