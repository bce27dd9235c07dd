package main

// Selectors for qparking pages. Both drivers accept plain CSS plus the
// "text=..." and "css:has-text('...')" forms.

// Home and visitor entry page.
const (
	selHomeReadyText     = "text=快速登入"
	selQuickLoginButton  = "a:has-text('快速登入')"
	selPolicyModal       = "#policyModal"
	selPolicyAgreeButton = "#policyModal button:has-text('我同意')"
	selLoadingOverlay    = ".loading, .loader, .spinner, [class*='loading'], [class*='loader']"
)

// Login modal.
const (
	selLoginModal    = "#loginModal"
	selEmailInput    = "#loginFormEmail"
	selPasswordInput = "#loginFormPsw"
	selAgreeTerms    = "#agreeMemberTermsLogin"
	selLoginButton   = "#loginBtn"
)

// Footer navigation.
const (
	selFooter            = "footer.footer-fixed"
	selFooterTicketsLink = "footer.footer-fixed a[href='/ParkingTicket']"
)

// Parking ticket page.
const (
	selLoadingMask    = "#loadingDiv, .loading-mask"
	selCarNumberInput = "#CarNumberID"
	selSearchButton   = "#btnGOrec"
	selTicketCheckbox = "input.form-check-input[type='checkbox'][name='cbUnpaids']"
	selNoResult       = ".no-result"
	selPayButton      = "#myForm > footer > div > button"
	selPaymentMethod  = "#PaymentMethod"
	selInvoiceOption  = "#InvoiceOptionString"
)

// Payment method option values.
var paymentMethods = map[string]string{
	"credit_card": "1",
	"line_pay":    "4",
}

// Invoice option values.
var invoiceOptions = map[string]string{
	"barcode":         "1-/A3RUA54",
	"barcode_custom":  "1",
	"citizen_digital": "2",
	"donation_919":    "4-919",
	"donation_8585":   "4-8585",
	"donation_custom": "4",
}
