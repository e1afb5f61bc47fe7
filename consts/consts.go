package consts

const (
	HeaderAccept      = "Accept"
	HeaderContentType = "Content-Type"

	ContentTypeJSON = "application/json"
)

// MerchantIdentifierOID is the Apple extension carrying the merchant identifier
// in merchant identity certificates.
const MerchantIdentifierOID = "1.2.840.113635.100.6.32"

// InitiativeWeb is the initiative value for Apple Pay on the web.
const InitiativeWeb = "web"

// Gateway endpoints.
const (
	// Sandbox (certification) gateway.
	CertificationGatewayHost = "apple-pay-gateway-cert.apple.com"
	// Production gateway.
	ProductionGatewayHost = "apple-pay-gateway.apple.com"

	PaymentServicesPathPrefix = "/paymentservices/"
	StartSessionPath          = "/paymentservices/startSession"
	PaymentSessionPath        = "/paymentservices/paymentSession"
)

// AllowedGatewayHosts lists every host a validation URL may point at.
//
// Values are taken from the Apple Pay on the web documentation.
var AllowedGatewayHosts = []string{
	ProductionGatewayHost,
	"apple-pay-gateway-nc-pod1.apple.com",
	"apple-pay-gateway-nc-pod2.apple.com",
	"apple-pay-gateway-nc-pod3.apple.com",
	"apple-pay-gateway-nc-pod4.apple.com",
	"apple-pay-gateway-nc-pod5.apple.com",
	"apple-pay-gateway-pr-pod1.apple.com",
	"apple-pay-gateway-pr-pod2.apple.com",
	"apple-pay-gateway-pr-pod3.apple.com",
	"apple-pay-gateway-pr-pod4.apple.com",
	"apple-pay-gateway-pr-pod5.apple.com",
	CertificationGatewayHost,
}

// DomainAssociationPath is where Apple fetches the merchant domain verification file.
const DomainAssociationPath = "/.well-known/apple-developer-merchantid-domain-association"
