package common

// AddressPrefix marks every ledger address.
const AddressPrefix = "ZYTH_"

// addressHexLen is the number of digest hex characters kept in an address.
const addressHexLen = 40

// Address identifies an account. Addresses derived from keys are
// AddressPrefix followed by the first 40 hex digits of SHA-256(pubkey);
// genesis and test addresses may be arbitrary strings.
type Address string

// AddressFromPublicKey derives the account address of an ed25519 public key.
func AddressFromPublicKey(publicKey []byte) Address {
	return Address(AddressPrefix + HashHex(publicKey)[:addressHexLen])
}

func (a Address) String() string {
	return string(a)
}

func (a Address) IsEmpty() bool {
	return a == ""
}
