package taskmanager

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOutputLFNs(t *testing.T) {
	got, err := OutputLFNs(12, 3456, []OutputSpec{
		{Path: "/ilc/prod/clic/sim", Filename: "sim.slcio"},
		{Path: "/ilc/prod/clic/rec/", Filename: "rec.root"},
		{Path: "/ilc/prod/clic/log", Filename: "noext"},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{
		"/ilc/prod/clic/sim/00000012/003/sim_12_3456.slcio",
		"/ilc/prod/clic/rec/00000012/003/rec_12_3456.root",
		"/ilc/prod/clic/log/00000012/003/noext_12_3456",
	}, got)
}

func TestOutputLFNs_TaskDirectoryGroupsByThousand(t *testing.T) {
	got, err := OutputLFNs(1, 999, []OutputSpec{{Path: "/p", Filename: "f.x"}})
	require.NoError(t, err)
	assert.Equal(t, "/p/00000001/000/f_1_999.x", got[0])

	got, err = OutputLFNs(1, 1000, []OutputSpec{{Path: "/p", Filename: "f.x"}})
	require.NoError(t, err)
	assert.Equal(t, "/p/00000001/001/f_1_1000.x", got[0])
}

func TestOutputLFNs_Empty(t *testing.T) {
	got, err := OutputLFNs(1, 1, nil)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestOutputLFNs_Invalid(t *testing.T) {
	for name, spec := range map[string]OutputSpec{
		"relative":    {Path: "prod", Filename: "a.x"},
		"dotdot":      {Path: "/prod/../x", Filename: "a.x"},
		"empty name":  {Path: "/prod", Filename: " "},
		"slash name":  {Path: "/prod", Filename: "a/b.x"},
		"only an ext": {Path: "/prod", Filename: ".x"},
	} {
		t.Run(name, func(t *testing.T) {
			_, err := OutputLFNs(1, 1, []OutputSpec{spec})
			assert.Error(t, err)
		})
	}
}
