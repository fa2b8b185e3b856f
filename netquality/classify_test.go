package netquality

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ms(v float64) *float64 { return &v }

func TestClassify(t *testing.T) {
	th := DefaultThresholds()

	tests := []struct {
		name string
		rtt  *float64
		loss float64
		want Quality
	}{
		{"rtt 300 is fair", ms(300), 0, QualityFair},
		{"rtt above 300", ms(301), 0, QualityPoor},
		{"rtt 150 is good", ms(150), 0, QualityGood},
		{"rtt 151 is fair", ms(151), 0, QualityFair},
		{"rtt 80 is excellent", ms(80), 0, QualityExcellent},
		{"rtt 100 is good", ms(100), 0, QualityGood},
		{"loss 5 is fair", ms(10), 5, QualityFair},
		{"loss 5.1 is poor", ms(10), 5.1, QualityPoor},
		{"loss 2 is good", ms(10), 2, QualityGood},
		{"loss 0.5 is excellent", ms(10), 0.5, QualityExcellent},
		{"loss 0.6 is good", ms(10), 0.6, QualityGood},
		{"worst metric wins", ms(20), 12, QualityPoor},
		{"unknown rtt stays excellent", nil, 50, QualityExcellent},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.rtt, tt.loss, th, false))
		})
	}
}

func TestClassifyDegradeWithoutRTT(t *testing.T) {
	th := DefaultThresholds()

	assert.Equal(t, QualityPoor, Classify(nil, 6, th, true))
	assert.Equal(t, QualityFair, Classify(nil, 3, th, true))
	assert.Equal(t, QualityGood, Classify(nil, 1, th, true))
	assert.Equal(t, QualityExcellent, Classify(nil, 0, th, true))
	assert.Equal(t, QualityPoor, Classify(ms(400), 0, th, true), "known rtt unaffected")
}

func TestQualityText(t *testing.T) {
	for _, q := range []Quality{QualityUnknown, QualityExcellent, QualityGood, QualityFair, QualityPoor} {
		parsed, err := ParseQuality(q.String())
		require.NoError(t, err)
		assert.Equal(t, q, parsed)
	}

	_, err := ParseQuality("superb")
	assert.ErrorIs(t, err, ErrInvalidQuality)
	assert.Equal(t, "unknown", Quality(42).String())
}

func TestStatsJSON(t *testing.T) {
	data, err := json.Marshal(Stats{})
	require.NoError(t, err)
	assert.JSONEq(t, `{"quality":"unknown","rtt":null,"packetLoss":null,"jitter":null}`, string(data))

	data, err = json.Marshal(Stats{Quality: QualityGood, RTT: ms(100), PacketLoss: ms(0), Jitter: ms(12)})
	require.NoError(t, err)
	assert.JSONEq(t, `{"quality":"good","rtt":100,"packetLoss":0,"jitter":12}`, string(data))

	var decoded Stats
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, QualityGood, decoded.Quality)
}

func TestThresholdsValidate(t *testing.T) {
	assert.NoError(t, DefaultThresholds().Validate())

	th := DefaultThresholds()
	th.FairRTT = 400
	assert.ErrorIs(t, th.Validate(), ErrInvalidThresholds)

	th = DefaultThresholds()
	th.GoodLoss = 2
	assert.ErrorIs(t, th.Validate(), ErrInvalidThresholds)
}
