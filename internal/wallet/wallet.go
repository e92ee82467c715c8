// ==================================
// File: internal/wallet/wallet.go
// ==================================
package wallet

import (
	"encoding/csv"
	"fmt"
	"os"
	"sync"

	"github.com/gagliardetto/solana-go"
	"github.com/mr-tron/base58"

	"github.com/rovshanmuradov/solana-amm/internal/ledger"
)

// Wallet представляет кошелёк трейдера или администратора пула.
type Wallet struct {
	PrivateKey solana.PrivateKey
	PublicKey  solana.PublicKey

	mu       sync.Mutex
	ataCache map[solana.PublicKey]solana.PublicKey // mint -> ATA
}

// NewWallet создаёт кошелёк из base58-encoded приватного ключа.
func NewWallet(privateKeyBase58 string) (*Wallet, error) {
	privateKeyBytes, err := base58.Decode(privateKeyBase58)
	if err != nil {
		return nil, fmt.Errorf("failed to decode private key: %w", err)
	}
	if len(privateKeyBytes) != 64 {
		return nil, fmt.Errorf("invalid private key length: expected 64 bytes, got %d", len(privateKeyBytes))
	}
	return fromKey(solana.PrivateKey(privateKeyBytes)), nil
}

// Generate создаёт кошелёк со случайным ключом.
func Generate() *Wallet {
	return fromKey(solana.NewWallet().PrivateKey)
}

func fromKey(key solana.PrivateKey) *Wallet {
	return &Wallet{
		PrivateKey: key,
		PublicKey:  key.PublicKey(),
		ataCache:   make(map[solana.PublicKey]solana.PublicKey),
	}
}

// LoadWallets загружает кошельки из CSV-файла с колонками: [Name, PrivateKeyBase58].
// Первая строка считается заголовком.
func LoadWallets(path string) (map[string]*Wallet, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	records, err := csv.NewReader(file).ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV: %w", err)
	}
	if len(records) < 2 {
		return nil, fmt.Errorf("CSV file is empty or missing data")
	}

	wallets := make(map[string]*Wallet)
	for i, record := range records[1:] {
		if len(record) != 2 {
			return nil, fmt.Errorf("line %d: expected 2 columns, got %d", i+2, len(record))
		}
		w, err := NewWallet(record[1])
		if err != nil {
			return nil, fmt.Errorf("line %d (%s): %w", i+2, record[0], err)
		}
		wallets[record[0]] = w
	}
	return wallets, nil
}

// Base58 возвращает приватный ключ в формате для LoadWallets.
func (w *Wallet) Base58() string {
	return base58.Encode(w.PrivateKey)
}

// ATA возвращает адрес ассоциированного токен-аккаунта для mint, с кешированием.
func (w *Wallet) ATA(mint solana.PublicKey) (solana.PublicKey, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if ata, ok := w.ataCache[mint]; ok {
		return ata, nil
	}
	ata, _, err := solana.FindAssociatedTokenAddress(w.PublicKey, mint)
	if err != nil {
		return solana.PublicKey{}, err
	}
	w.ataCache[mint] = ata
	return ata, nil
}

// SignTransfer подписывает каноническое сообщение перевода source -> destination
// с указанным nonce и memo.
func (w *Wallet) SignTransfer(source, destination solana.PublicKey, amount, nonce uint64, memo []byte) (solana.Signature, error) {
	return w.Sign(ledger.TransferMessage(source, destination, amount, nonce, memo))
}

// Sign подписывает произвольное сообщение.
func (w *Wallet) Sign(message []byte) (solana.Signature, error) {
	sig, err := w.PrivateKey.Sign(message)
	if err != nil {
		return solana.Signature{}, fmt.Errorf("failed to sign: %w", err)
	}
	return sig, nil
}

// String возвращает публичный ключ кошелька.
func (w *Wallet) String() string {
	return w.PublicKey.String()
}
