package npjson

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/xinkaiwang/northpole/libs/xklib/kcommon"
	"github.com/xinkaiwang/northpole/services/northpole/internal/data"
)

func TestWorkerJsonFormat(t *testing.T) {
	kcommon.RunWithTimeProvider(kcommon.NewMockTimeProvider(1700000000000), func() {
		wj := NewWorkerJson("w-1", data.WC_Elves)
		assert.Equal(t, `{"id":"w-1","class":"elves","state":"ready","created_ms":1700000000000}`, wj.ToJson())

		wj.State = data.WS_Working
		wj.GroupId = "g-1"
		wj.SetUpdateReason("promoted")
		assert.Equal(t, `{"id":"w-1","class":"elves","state":"working","created_ms":1700000000000,"group_id":"g-1","update_reason":"promoted","update_ms":1700000000000}`, wj.ToJson())
	})
}

func TestWorkerJsonFromJsonRejects(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"not json", `{`},
		{"missing id", `{"class":"elves","state":"ready"}`},
		{"bad class", `{"id":"w","class":"gnomes","state":"ready"}`},
		{"bad state", `{"id":"w","class":"elves","state":"asleep"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Panics(t, func() { WorkerJsonFromJson(tt.input) })
		})
	}
}

func TestGroupJsonDone(t *testing.T) {
	g := NewGroupJson(data.WC_Elves, []data.WorkerId{"a", "b", "c"})
	assert.NotEmpty(t, g.GroupId)
	assert.True(t, g.HasMember("b"))
	assert.False(t, g.HasMember("d"))
	assert.False(t, g.AllDone())

	g.Done = append(g.Done, "a", "b")
	clone := g.Clone()
	g.Done = append(g.Done, "c")
	assert.True(t, g.AllDone())
	assert.False(t, clone.AllDone())

	parsed := GroupJsonFromJson(g.ToJson())
	assert.Equal(t, g.Members, parsed.Members)
	assert.Equal(t, g.Done, parsed.Done)
}

func TestSpeedJsonDefaults(t *testing.T) {
	sj := SpeedJsonFromJson(`{"work_speed":80}`)
	assert.Equal(t, 80.0, sj.WorkSpeed)
	assert.Equal(t, float64(DefaultVacationSpeed), sj.VacationSpeed)
}
