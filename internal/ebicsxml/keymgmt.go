package ebicsxml

import "encoding/xml"

// Header fields shared by the key-management requests (INI, HIA, HPB).
// INI and HIA precede any released subscriber key, so they carry no
// authentication signature; an HPB request carries an AuthSignature on
// its envelope (spec.md §4.2).
type StaticHeader struct {
	HostID     string `xml:"static>HostID"`
	PartnerID  string `xml:"static>PartnerID"`
	UserID     string `xml:"static>UserID"`
	SystemID   string `xml:"static>SystemID,omitempty"`
	OrderID    string `xml:"static>OrderDetails>OrderID,omitempty"`
	OrderType  string `xml:"static>OrderDetails>OrderType,omitempty"`
	SecurityMedium string `xml:"static>SecurityMedium"`
}

// UnsecuredRequest carries INI (signature key) and HIA (encryption +
// authentication keys) order data: the very first keys a subscriber
// ever submits, necessarily unsigned since no key is confirmed yet.
type UnsecuredRequest struct {
	XMLName    xml.Name     `xml:"ebicsUnsecuredRequest"`
	Header     StaticHeader `xml:"header"`
	OrderData  []byte       `xml:"body>DataTransfer>OrderData"`
}

func (r *UnsecuredRequest) RootName() RootElement { return RootUnsecuredRequest }

// NoPubKeyDigestsRequest carries HPB: a request for the bank's own
// public keys. Unlike INI/HIA it is sent by an already-INITIALIZED
// subscriber, so it is authenticated the same way as ebicsRequest
// (spec.md §4.4).
type NoPubKeyDigestsRequest struct {
	XMLName       xml.Name     `xml:"ebicsNoPubKeyDigestsRequest"`
	Header        StaticHeader `xml:"header"`
	AuthSignature []byte       `xml:"AuthSignature>SignatureValue"`
}

func (r *NoPubKeyDigestsRequest) RootName() RootElement { return RootNoPubKeyDigestsRequest }

// SignaturePubKeyOrderData is the order-data payload of an INI request:
// the subscriber's freshly generated A006 signature public key.
type SignaturePubKeyOrderData struct {
	XMLName        xml.Name `xml:"SignaturePubKeyOrderData"`
	Modulus        []byte   `xml:"SignaturePubKeyInfo>PubKeyValue>RSAKeyValue>Modulus"`
	Exponent       []byte   `xml:"SignaturePubKeyInfo>PubKeyValue>RSAKeyValue>Exponent"`
	SignatureVersion string `xml:"SignaturePubKeyInfo>SignatureVersion"`
	PartnerID      string   `xml:"PartnerID"`
	UserID         string   `xml:"UserID"`
}

// HIAPubKeyOrderData is HIA's order-data payload: the encryption (E002)
// and authentication (X002) public keys.
type HIAPubKeyOrderData struct {
	XMLName             xml.Name `xml:"HIARequestOrderData"`
	EncryptionModulus    []byte   `xml:"EncryptionPubKeyInfo>PubKeyValue>RSAKeyValue>Modulus"`
	EncryptionExponent   []byte   `xml:"EncryptionPubKeyInfo>PubKeyValue>RSAKeyValue>Exponent"`
	EncryptionVersion    string   `xml:"EncryptionPubKeyInfo>EncryptionVersion"`
	AuthenticationModulus  []byte `xml:"AuthenticationPubKeyInfo>PubKeyValue>RSAKeyValue>Modulus"`
	AuthenticationExponent []byte `xml:"AuthenticationPubKeyInfo>PubKeyValue>RSAKeyValue>Exponent"`
	AuthenticationVersion  string `xml:"AuthenticationPubKeyInfo>AuthenticationVersion"`
	PartnerID            string   `xml:"PartnerID"`
	UserID               string   `xml:"UserID"`
}

// UserSignatureData is the order-data payload carried inside
// UserSignatureData at upload INITIALISATION: the subscriber's A006
// signature over the order data that follows in the TRANSFER phase
// (spec.md §4.5).
type UserSignatureData struct {
	XMLName          xml.Name `xml:"UserSignatureData"`
	SignatureVersion string   `xml:"OrderSignatureData>SignatureVersion"`
	SignatureValue   []byte   `xml:"OrderSignatureData>SignatureValue"`
	PartnerID        string   `xml:"OrderSignatureData>PartnerID"`
	UserID           string   `xml:"OrderSignatureData>UserID"`
}

// HPBResponseOrderData is the bank's answer to HPB: its own encryption
// and authentication public keys, each accompanied by the digest the
// client is expected to verify out-of-band before trusting them.
type HPBResponseOrderData struct {
	XMLName              xml.Name `xml:"HPBResponseOrderData"`
	EncryptionModulus     []byte   `xml:"EncryptionPubKeyInfo>PubKeyValue>RSAKeyValue>Modulus"`
	EncryptionExponent    []byte   `xml:"EncryptionPubKeyInfo>PubKeyValue>RSAKeyValue>Exponent"`
	EncryptionVersion     string   `xml:"EncryptionPubKeyInfo>EncryptionVersion"`
	EncryptionDigest      []byte   `xml:"EncryptionPubKeyInfo>PubKeyDigest"`
	AuthenticationModulus   []byte `xml:"AuthenticationPubKeyInfo>PubKeyValue>RSAKeyValue>Modulus"`
	AuthenticationExponent  []byte `xml:"AuthenticationPubKeyInfo>PubKeyValue>RSAKeyValue>Exponent"`
	AuthenticationVersion   string `xml:"AuthenticationPubKeyInfo>AuthenticationVersion"`
	AuthenticationDigest    []byte `xml:"AuthenticationPubKeyInfo>PubKeyDigest"`
	HostID                string   `xml:"HostID"`
}

// PartnerInfo is the order-data body of an HTD response: a static
// description of the partner's accounts and permitted order types
// (spec.md §4.6).
type PartnerInfo struct {
	XMLName     xml.Name     `xml:"HTDResponseOrderData"`
	PartnerID   string       `xml:"PartnerInfo>PartnerID"`
	AccountIBAN string       `xml:"PartnerInfo>AccountInfo>AccountNumber"`
	AccountBIC  string       `xml:"PartnerInfo>AccountInfo>BankCode"`
	OrderTypes  []string     `xml:"PartnerInfo>OrderInfo>OrderType"`
	UserID      string       `xml:"UserInfo>UserID"`
	Permissions []string     `xml:"UserInfo>Permission>OrderTypes"`
}
