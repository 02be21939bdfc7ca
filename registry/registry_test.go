package registry

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/partsol/checkmate/taxonomy"
)

func TestWorkerKeyLayout(t *testing.T) {
	c := &Client{namespace: "checkmate"}
	info := WorkerInfo{
		DataSource: taxonomy.SourceCVE,
		Service:    "cve-ingress",
		InstanceID: "i-42",
	}
	assert.Equal(t, "/checkmate/datasources/CVE/i-42", c.workerKey(info))
	assert.Equal(t, "/checkmate/datasources/CVE/", c.sourcePrefix(taxonomy.SourceCVE))
}

func TestWorkerInfoWireKeys(t *testing.T) {
	info := WorkerInfo{
		DataSource: taxonomy.SourcePeopleDataLabs,
		Service:    "pdl-ingress",
		InstanceID: "i-1",
		StartedAt:  time.Date(2024, 4, 5, 12, 0, 0, 0, time.UTC),
	}
	data, err := json.Marshal(info)
	require.NoError(t, err)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(data, &raw))
	assert.Equal(t, "peopleDataLabs", raw["dataSource"])
	assert.Equal(t, "i-1", raw["instanceId"])
}
