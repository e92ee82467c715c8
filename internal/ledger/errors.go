package ledger

import "errors"

var (
	// ErrAccountNotFound возникает, когда аккаунт отсутствует в реестре
	ErrAccountNotFound = errors.New("account not found")

	// ErrAccountExists возникает при повторном создании аккаунта
	ErrAccountExists = errors.New("account already exists")

	// ErrPoolNotFound возникает, когда конфигурация пула отсутствует
	ErrPoolNotFound = errors.New("pool config not found")

	// ErrInsufficientFunds возникает, когда баланса источника не хватает
	ErrInsufficientFunds = errors.New("insufficient funds")

	// ErrBalanceOverflow возникает, когда баланс получателя переполняется
	ErrBalanceOverflow = errors.New("balance overflow")

	// ErrMintMismatch возникает при переводе между аккаунтами разных mint'ов
	ErrMintMismatch = errors.New("account mint mismatch")

	// ErrAccountFrozen возникает при переводе с замороженного или на замороженный аккаунт
	ErrAccountFrozen = errors.New("account is frozen")

	// ErrOwnerMismatch возникает, когда подписант не владелец источника
	ErrOwnerMismatch = errors.New("owner does not match source account")

	// ErrUnauthorizedSigner возникает при неверной подписи или seeds
	ErrUnauthorizedSigner = errors.New("transfer signer not authorized")

	// ErrInvalidNonce возникает при повторном или внеочередном nonce подписанта
	ErrInvalidNonce = errors.New("nonce already used or out of sequence")

	// ErrInvalidInstruction возникает при некорректной инструкции перевода
	ErrInvalidInstruction = errors.New("invalid transfer instruction")
)
