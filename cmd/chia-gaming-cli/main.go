// Command chia-gaming-cli drives two in-process cradles (an "alice" and
// a "bob") against an in-memory simulator, for manual end-to-end
// exercise of the handshake flow without a real wallet or chain.
package main

import (
	"bytes"
	"fmt"
	"os"

	"github.com/jessevdk/go-flags"

	"github.com/chia-network/chia-gaming-go/cradle"
	"github.com/chia-network/chia-gaming-go/host"
	"github.com/chia-network/chia-gaming-go/potato"
	"github.com/chia-network/chia-gaming-go/types"
	"github.com/chia-network/chia-gaming-go/wire"
)

type options struct {
	Rounds int `long:"rounds" description:"number of outbound message pump rounds to run" default:"8"`
}

func main() {
	var opts options
	parser := flags.NewParser(&opts, flags.Default)
	if _, err := parser.Parse(); err != nil {
		if flags.WroteHelp(err) {
			os.Exit(0)
		}
		os.Exit(1)
	}

	if err := run(opts); err != nil {
		fmt.Fprintln(os.Stderr, "chia-gaming-cli:", err)
		os.Exit(1)
	}
}

// bus is a simple point-to-point pipe: whatever one cradle queues for
// outbound delivery is handed directly to the other's DeliverMessage,
// standing in for the real transport a host would own.
type bus struct {
	alice, bob *cradle.Cradle
}

func (b *bus) pump(rounds int) error {
	links := []struct {
		from, to *cradle.Cradle
		name     string
	}{
		{b.alice, b.bob, "alice->bob"},
		{b.bob, b.alice, "bob->alice"},
	}
	for i := 0; i < rounds; i++ {
		progress := false
		for _, link := range links {
			result := link.from.Idle()
			for _, msg := range result.OutboundMessages {
				if err := link.to.DeliverMessage(msg); err != nil {
					return fmt.Errorf("%s: %w", link.name, err)
				}
				progress = true
			}
			if result.ContinueOn {
				progress = true
			}
		}
		if !progress {
			return nil
		}
	}
	return nil
}

// noopUI discards every UI event; the CLI only cares about the cradle
// effect queues, not a rendered game.
type noopUI struct{}

func (noopUI) SelfMove(gameID [32]byte, move []byte)             {}
func (noopUI) OpponentMoved(gameID [32]byte, move []byte)         {}
func (noopUI) RawGameMessage(gameID [32]byte, message []byte)     {}
func (noopUI) GameMessage(gameID [32]byte, message []byte)        {}
func (noopUI) GameStart(gameID [32]byte)                          {}
func (noopUI) GameFinished(gameID [32]byte, myShare types.Amount) {}
func (noopUI) GameCancelled(gameID [32]byte)                      {}
func (noopUI) ShutdownComplete(rewardCoin types.Coin)             {}
func (noopUI) GoingOnChain(gotError bool)                         {}

// noFactory rejects every game-start request; this CLI only exercises
// the handshake and message pump, not a concrete game type.
type noFactory struct{}

func (noFactory) RunFactory(gameType string, amount, myContribution types.Amount, myTurn bool, parameters []byte) ([]host.FactoryGameStart, []host.FactoryGameStart, error) {
	return nil, nil, fmt.Errorf("chia-gaming-cli: no game factory registered for %q", gameType)
}

// instantWallet answers the handshake's wallet callbacks without a real
// funding round-trip. Its one real piece of behavior is ChannelPuzzleHash:
// the non-holder side's wallet bootstrap, which a real
// wallet would answer asynchronously once it actually funds the coin;
// here it answers immediately with a bundle carrying the partial
// signature channel.Initiate already produced, standing in for a wallet
// that always signs whatever it's asked to. self is set after the owning
// Cradle is constructed, since the two are mutually referential.
type instantWallet struct {
	self          *cradle.Cradle
	channelAmount types.Amount
}

func (instantWallet) SendMessage(envelope wire.Envelope) error                            { return nil }
func (instantWallet) RegisterCoin(coin types.Coin, timeoutBlocks uint32, debugName string) {}
func (instantWallet) SpendTransactionAndAddFee(bundle host.SpendBundle, feeRateHint uint64) error {
	return nil
}
func (instantWallet) RequestPuzzleAndSolution(coin types.Coin) error { return nil }

func (w *instantWallet) ChannelPuzzleHash(ph types.Hash) error {
	if w.self.Potato().HandshakeState() != potato.StepC {
		// The holder also triggers this callback, when it handles
		// HandshakeB; only the non-holder sends the channel offer.
		return nil
	}
	bundle := types.SpendBundle{
		Coin:      types.Coin{ParentID: types.ZeroHash, PuzzleHash: ph, Amount: w.channelAmount},
		Signature: w.self.Potato().OurChannelPartialSig(),
	}
	return w.self.SendChannelOffer(bundle)
}

func (instantWallet) ReceivedChannelOffer(bundle host.SpendBundle) error {
	return nil
}
func (instantWallet) ReceivedChannelTransactionCompletion(bundle host.SpendBundle) error {
	return nil
}

func keysFromSeed(ikm []byte) (types.ChannelHandlerPrivateKeys, error) {
	channelKey, err := types.GeneratePrivateKey(append([]byte{0x01}, ikm...))
	if err != nil {
		return types.ChannelHandlerPrivateKeys{}, err
	}
	unrollKey, err := types.GeneratePrivateKey(append([]byte{0x02}, ikm...))
	if err != nil {
		return types.ChannelHandlerPrivateKeys{}, err
	}
	refereeKey, err := types.GeneratePrivateKey(append([]byte{0x03}, ikm...))
	if err != nil {
		return types.ChannelHandlerPrivateKeys{}, err
	}
	return types.ChannelHandlerPrivateKeys{Channel: channelKey, Unroll: unrollKey, Referee: refereeKey}, nil
}

func run(opts options) error {
	aliceKeys, err := keysFromSeed(bytes.Repeat([]byte{0xA1}, 32))
	if err != nil {
		return err
	}
	bobKeys, err := keysFromSeed(bytes.Repeat([]byte{0xB2}, 32))
	if err != nil {
		return err
	}

	networkAggSigConstant := types.HashBytes([]byte("chia-gaming-testnet"))
	const channelAmount = types.Amount(2000)

	aliceWallet := &instantWallet{channelAmount: channelAmount}
	bobWallet := &instantWallet{channelAmount: channelAmount}

	aliceCradle := cradle.New(cradle.Config{
		OurKeys:               aliceKeys,
		OurRewardPuzzleHash:   types.HashBytes([]byte("alice-reward")),
		OurRefereePuzzleHash:  types.HashBytes([]byte("alice-referee")),
		NetworkAggSigConstant: networkAggSigConstant,
		UI:                    noopUI{},
		Factory:               noFactory{},
		Wallet:                aliceWallet,
		WeHoldPotatoAtStart:   true,
		OurContribution:       1000,
		TheirContribution:     1000,
	})
	aliceWallet.self = aliceCradle
	bobCradle := cradle.New(cradle.Config{
		OurKeys:               bobKeys,
		OurRewardPuzzleHash:   types.HashBytes([]byte("bob-reward")),
		OurRefereePuzzleHash:  types.HashBytes([]byte("bob-referee")),
		NetworkAggSigConstant: networkAggSigConstant,
		UI:                    noopUI{},
		Factory:               noFactory{},
		Wallet:                bobWallet,
		WeHoldPotatoAtStart:   false,
		OurContribution:       1000,
		TheirContribution:     1000,
	})
	bobWallet.self = bobCradle

	parentCoin := types.Coin{
		ParentID:   types.ZeroHash,
		PuzzleHash: types.HashBytes([]byte("alice-parent-puzzle")),
		Amount:     2000,
	}
	if err := aliceCradle.OpeningCoin(parentCoin); err != nil {
		return fmt.Errorf("opening handshake: %w", err)
	}

	b := &bus{alice: aliceCradle, bob: bobCradle}
	if err := b.pump(opts.Rounds); err != nil {
		return fmt.Errorf("handshake pump: %w", err)
	}

	fmt.Printf("alice handshake state: %v\n", aliceCradle.Potato().HandshakeState())
	fmt.Printf("bob handshake state:   %v\n", bobCradle.Potato().HandshakeState())
	return nil
}
