package real

import (
	"context"
	"testing"
	"time"

	"github.com/opd-ai/callquality/interfaces"
	"github.com/opd-ai/callquality/netquality"
	"github.com/pion/webrtc/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSource struct {
	report webrtc.StatsReport
	state  webrtc.PeerConnectionState
	block  chan struct{}
}

func (f *fakeSource) GetStats() webrtc.StatsReport {
	if f.block != nil {
		<-f.block
	}
	return f.report
}

func (f *fakeSource) ConnectionState() webrtc.PeerConnectionState { return f.state }

func sampleReport() webrtc.StatsReport {
	return webrtc.StatsReport{
		"IT-video": &webrtc.InboundRTPStreamStats{
			ID:              "IT-video",
			Type:            webrtc.StatsTypeInboundRTP,
			Kind:            "video",
			PacketsReceived: 90,
			PacketsLost:     10,
			Jitter:          0.02,
		},
		"CP1": webrtc.ICECandidatePairStats{
			ID:                   "CP1",
			Type:                 webrtc.StatsTypeCandidatePair,
			State:                webrtc.StatsICECandidatePairStateSucceeded,
			CurrentRoundTripTime: 0.1,
		},
		"CP0": webrtc.ICECandidatePairStats{
			ID:    "CP0",
			Type:  webrtc.StatsTypeCandidatePair,
			State: webrtc.StatsICECandidatePairStateWaiting,
		},
		"T1": webrtc.TransportStats{ID: "T1", Type: webrtc.StatsTypeTransport},
	}
}

func TestConvertReport(t *testing.T) {
	report := ConvertReport(sampleReport())

	require.Len(t, report, 3)
	assert.Equal(t, []string{"CP0", "CP1", "IT-video"}, []string{report[0].ID, report[1].ID, report[2].ID})

	assert.Equal(t, interfaces.StatsTypeCandidatePair, report[1].Type)
	assert.Equal(t, interfaces.CandidatePairStateSucceeded, report[1].State)
	require.NotNil(t, report[1].CurrentRoundTripTime)
	assert.Equal(t, 0.1, *report[1].CurrentRoundTripTime)
	assert.Nil(t, report[0].CurrentRoundTripTime, "no round trip measured yet")

	video := report[2]
	assert.Equal(t, interfaces.StatsTypeInboundRTP, video.Type)
	assert.Equal(t, interfaces.MediaKindVideo, video.Kind)
	assert.Equal(t, uint64(90), video.PacketsReceived)
	assert.Equal(t, int64(10), video.PacketsLost)
}

func TestConvertedReportClassifies(t *testing.T) {
	sample := netquality.ParseReport(ConvertReport(sampleReport()))
	require.NotNil(t, sample.RTT)
	assert.Equal(t, 100.0, *sample.RTT)
	assert.Equal(t, 20.0, *sample.Jitter)

	loss := netquality.IncrementalLoss(netquality.Counters{}, netquality.Counters{
		PacketsReceived: sample.PacketsReceived,
		PacketsLost:     sample.PacketsLost,
	})
	assert.Equal(t, 10.0, loss)
	assert.Equal(t, netquality.QualityPoor, netquality.Classify(sample.RTT, loss, netquality.DefaultThresholds(), false))
}

func TestStatsReporter(t *testing.T) {
	source := &fakeSource{report: sampleReport(), state: webrtc.PeerConnectionStateConnected}
	reporter := NewStatsReporter(source)

	assert.False(t, reporter.Closed())
	report, err := reporter.GetStats(context.Background())
	require.NoError(t, err)
	assert.Len(t, report, 3)

	source.state = webrtc.PeerConnectionStateClosed
	assert.True(t, reporter.Closed())
}

func TestStatsReporterHonoursContext(t *testing.T) {
	source := &fakeSource{block: make(chan struct{})}
	defer close(source.block)
	reporter := NewStatsReporter(source)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := reporter.GetStats(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestStatsReporterWithoutConnection(t *testing.T) {
	reporter := NewStatsReporter(nil)
	assert.True(t, reporter.Closed())

	_, err := reporter.GetStats(context.Background())
	assert.ErrorIs(t, err, ErrNoConnection)
}

func TestStatsReporterPeerConnection(t *testing.T) {
	pc, err := webrtc.NewPeerConnection(webrtc.Configuration{})
	require.NoError(t, err)

	reporter := NewStatsReporter(pc)
	assert.False(t, reporter.Closed())

	_, err = reporter.GetStats(context.Background())
	require.NoError(t, err)

	require.NoError(t, pc.Close())
	assert.True(t, reporter.Closed())
}
