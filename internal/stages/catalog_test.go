package stages

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dcmn/ordertrack/internal/models"
)

func TestCatalog_CodesUniqueAndIntakeFirst(t *testing.T) {
	for _, svc := range Services() {
		p, ok := Pipeline(svc)
		require.True(t, ok, svc)
		require.NotEmpty(t, p, svc)

		seen := map[string]bool{}
		for _, d := range p {
			require.NotEmpty(t, d.Code, svc)
			require.NotEmpty(t, d.Name, svc)
			require.False(t, seen[d.Code], "duplicate code %q in %s", d.Code, svc)
			seen[d.Code] = true
		}

		require.Equal(t, "document_received", p[0].Code, svc)
		require.Equal(t, p[0].Code, IntakeStage(svc))
	}
}

func TestResolveService_Aliases(t *testing.T) {
	svc, ok := ResolveService("embassy")
	require.True(t, ok)
	require.Equal(t, "embassy_legalization", svc)

	svc, ok = ResolveService("apostille")
	require.True(t, ok)
	require.Equal(t, "state_apostille", svc)

	svc, ok = ResolveService("translation")
	require.True(t, ok)
	require.Equal(t, "translation", svc)

	_, ok = ResolveService("i9")
	require.False(t, ok)
	_, ok = ResolveService("")
	require.False(t, ok)
}

func TestValidStage(t *testing.T) {
	require.True(t, ValidStage("fbi_apostille", "processed_dos"))
	require.True(t, ValidStage("fbi_apostille", models.StageCompleted))
	require.False(t, ValidStage("fbi_apostille", "processed_state"))
	require.False(t, ValidStage("nope", "document_received"))
}

func TestServiceLabel(t *testing.T) {
	require.Equal(t, "FBI Apostille", ServiceLabel("fbi_apostille"))
	// неизвестный ключ отдаём как есть
	require.Equal(t, "custom", ServiceLabel("custom"))
}
