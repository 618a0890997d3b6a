package watcher

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"solana-pump-pipeline/internal/udp"
)

func collectPackets(t *testing.T, port int) (chan []byte, func()) {
	t.Helper()
	listener, err := udp.NewListener(port)
	require.NoError(t, err)
	packets := make(chan []byte, 64)
	go listener.Run(packets)
	return packets, func() { listener.Close() }
}

func drainByType(t *testing.T, packets chan []byte, timeout time.Duration) map[byte][][]byte {
	t.Helper()
	byType := make(map[byte][][]byte)
	deadline := time.After(timeout)
	for {
		select {
		case pkt := <-packets:
			if len(pkt) > 0 {
				byType[pkt[0]] = append(byType[pkt[0]], pkt)
			}
		case <-deadline:
			return byType
		}
	}
}

func TestDeltaWindowCapture(t *testing.T) {
	const brainPort, executorPort = 45920, 45921

	brainPackets, closeBrain := collectPackets(t, brainPort)
	defer closeBrain()
	executorPackets, closeExecutor := collectPackets(t, executorPort)
	defer closeExecutor()

	sender, err := udp.NewBatchedSender()
	require.NoError(t, err)
	defer sender.Close()

	positions := NewPositionTracker()
	broadcaster := NewBroadcaster(
		udp.NewPublisher(sender, "127.0.0.1", brainPort),
		udp.NewPublisher(sender, "127.0.0.1", executorPort),
		positions, nil, 150, 250)

	watch := testWatchSig(udp.SideBuy) // entry 1M lamports, 0.5 SOL, target $1, stop -$0.50
	positions.AddPosition(watch)

	// Start the capture; feed market activity while the buffer is open.
	done := make(chan struct{})
	go func() {
		broadcaster.BroadcastWithContext(watch, 1000, udp.StatusSuccess, 1_500_000)
		close(done)
	}()

	time.Sleep(50 * time.Millisecond)
	mintStr := watch.MintStr()
	broadcaster.Observe(&DecodedTx{
		Class: ClassBuy, Signature: "zzzz", Slot: 1000, Mint: mintStr,
		Trader: "buyer1", SolAmount: 2.5, Price: 0.0015,
	})
	broadcaster.Observe(&DecodedTx{
		Class: ClassSell, Signature: "sig2", Slot: 1001, Mint: mintStr,
		Trader: "seller1", SolAmount: 1.2, Price: 0.0015,
	})

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("broadcast did not complete")
	}

	brain := drainByType(t, brainPackets, 300*time.Millisecond)
	executor := drainByType(t, executorPackets, 100*time.Millisecond)

	// TxConfirmedContext reached both endpoints.
	require.Len(t, executor[udp.TypeTxConfirmedContext], 1)
	require.NotEmpty(t, brain[udp.TypeTxConfirmedContext])

	ctx, err := udp.DecodeTxConfirmedContext(brain[udp.TypeTxConfirmedContext][0])
	require.NoError(t, err)
	assert.Equal(t, "SUCCESS", ctx.StatusStr())
	assert.GreaterOrEqual(t, ctx.TrailMs, uint16(150))
	assert.LessOrEqual(t, ctx.TrailMs, uint16(400))
	assert.EqualValues(t, 5000, ctx.PriceChangeBpsDelta, "1.0M → 1.5M entry is +5000 bps")
	assert.Greater(t, ctx.RealizedPnLCents, int32(0))
	assert.EqualValues(t, 1, ctx.UniqBuyersDelta)
	assert.InDelta(t, 2.5, ctx.VolBuySol(), 0.001)
	assert.InDelta(t, 1.2, ctx.VolSellSol(), 0.001)
	assert.EqualValues(t, 1, ctx.NextSlotCount)

	// Profit target was cleared at confirmation: TARGET_HIT advice with
	// confidence 95 went to the brain.
	require.NotEmpty(t, brain[udp.TypeExitAdvice])
	var sawTargetHit bool
	for _, pkt := range brain[udp.TypeExitAdvice] {
		advice, err := udp.DecodeExitAdvice(pkt)
		require.NoError(t, err)
		if advice.Reason == udp.ReasonTargetHit && advice.Confidence == 95 {
			sawTargetHit = true
		}
	}
	assert.True(t, sawTargetHit, "expected TARGET_HIT advice with confidence 95")
}

func TestSameSlotTieBreak(t *testing.T) {
	const brainPort, executorPort = 45922, 45923

	brainPackets, closeBrain := collectPackets(t, brainPort)
	defer closeBrain()
	_, closeExecutor := collectPackets(t, executorPort)
	defer closeExecutor()

	sender, err := udp.NewBatchedSender()
	require.NoError(t, err)
	defer sender.Close()

	positions := NewPositionTracker()
	broadcaster := NewBroadcaster(
		udp.NewPublisher(sender, "127.0.0.1", brainPort),
		udp.NewPublisher(sender, "127.0.0.1", executorPort),
		positions, nil, 150, 200)

	watch := testWatchSig(udp.SideBuy)
	ourSig := watch.SignatureStr()

	done := make(chan struct{})
	go func() {
		broadcaster.BroadcastWithContext(watch, 500, udp.StatusSuccess, 1_000_000)
		close(done)
	}()
	time.Sleep(40 * time.Millisecond)

	mintStr := watch.MintStr()
	// Lexicographically after ours in the same slot: counted.
	broadcaster.Observe(&DecodedTx{
		Class: ClassBuy, Signature: "zzzz_after", Slot: 500, Mint: mintStr,
		Trader: "t1", SolAmount: 1.0, Price: 0.001,
	})
	// Before ours in the same slot: not counted as same_slot_after.
	broadcaster.Observe(&DecodedTx{
		Class: ClassBuy, Signature: "0000_before", Slot: 500, Mint: mintStr,
		Trader: "t2", SolAmount: 1.0, Price: 0.001,
	})
	_ = ourSig

	<-done
	brain := drainByType(t, brainPackets, 300*time.Millisecond)
	require.NotEmpty(t, brain[udp.TypeTxConfirmedContext])

	ctx, err := udp.DecodeTxConfirmedContext(brain[udp.TypeTxConfirmedContext][0])
	require.NoError(t, err)
	assert.EqualValues(t, 1, ctx.SameSlotAfter)
	assert.EqualValues(t, 2, ctx.UniqBuyersDelta, "both buys count toward buyer tally")
}
