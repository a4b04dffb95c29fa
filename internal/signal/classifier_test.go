package signal

import "testing"

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		text string
		want Kind
	}{
		{"alert", "🔥 5x ALERT 🔥\n$MCAT hit 5x in 2h", KindAlert},
		{"alert lowercase", "2x alert on PEPE", KindAlert},
		{"alert beats signal keywords", "10x ALERT\nContract: 7xKXtg2CW87d97TXJSDpbD5jBkheTqA83TZRuJosgAsU\nMarket Cap: $1M", KindAlert},
		{"standard signal", "🚀 MOON\nChain: Solana\nMarket Cap: $100K", KindSignal},
		{"compact signal", "💎 PEPE | SOL\n💵 $0.1 | MC: $100K", KindSignal},
		{"simple signal", "🚀 CAT\nSolana\n$100K MC", KindSignal},
		{"confidence only", "Confidence: 90%", KindSignal},
		{"chatter", "gm everyone, who is watching the market today?", KindUnknown},
		{"empty", "", KindUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Classify(tt.text); got != tt.want {
				t.Errorf("Classify() = %v, want %v", got, tt.want)
			}
		})
	}
}
