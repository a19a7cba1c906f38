package invoice

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"io"
	"time"

	"github.com/skip2/go-qrcode"

	"ms-auctions/internal/models"
)

// Generator produces the invoice record for a materialized order,
// including an encrypted claim QR the buyer presents on delivery.
type Generator struct {
	secret []byte
}

func NewGenerator(secret string) *Generator {
	hashed := sha256.Sum256([]byte(secret)) // normalize to 32 bytes
	return &Generator{secret: hashed[:]}
}

// Invoice is the document produced for a sale.
type Invoice struct {
	OrderCode  string                 `json:"order_code"`
	BuyerName  string                 `json:"buyer_name"`
	Items      []Item                 `json:"items"`
	PaidAmount float64                `json:"paid_amount"`
	Address    models.ShippingAddress `json:"address"`
	Date       string                 `json:"date"`
	ClaimQR    []byte                 `json:"claim_qr"`
}

type Item struct {
	Title        string  `json:"title"`
	BasePrice    float64 `json:"base_price"`
	Discount     float64 `json:"discount"`
	AppliedPrice float64 `json:"applied_price"`
}

type claimPayload struct {
	OrderID   string `json:"order_id"`
	OrderCode string `json:"order_code"`
	UserID    string `json:"user_id"`
	ProductID string `json:"product_id"`
}

// Generate builds the invoice for an order, embedding the claim QR.
func (g *Generator) Generate(order *models.Order, buyerName, productTitle string) (*Invoice, error) {
	qr, err := g.generateClaimQR(order)
	if err != nil {
		return nil, err
	}

	return &Invoice{
		OrderCode: order.OrderCode,
		BuyerName: buyerName,
		Items: []Item{
			{
				Title:        productTitle,
				BasePrice:    order.TotalPrice,
				AppliedPrice: order.TotalPrice,
			},
		},
		PaidAmount: order.TotalPrice,
		Address:    order.ShippingAddress,
		Date:       time.Now().Format("2006-01-02 15:04:05"),
		ClaimQR:    qr,
	}, nil
}

func (g *Generator) generateClaimQR(order *models.Order) ([]byte, error) {
	data, err := json.Marshal(claimPayload{
		OrderID:   order.ID,
		OrderCode: order.OrderCode,
		UserID:    order.UserID,
		ProductID: order.ProductID,
	})
	if err != nil {
		return nil, err
	}

	encrypted, err := encryptAES(data, g.secret)
	if err != nil {
		return nil, err
	}

	return qrcode.Encode(encrypted, qrcode.Medium, 256)
}

func encryptAES(data []byte, key []byte) (string, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return "", err
	}

	ciphertext := make([]byte, aes.BlockSize+len(data))
	iv := ciphertext[:aes.BlockSize]

	if _, err := io.ReadFull(rand.Reader, iv); err != nil {
		return "", err
	}

	stream := cipher.NewCFBEncrypter(block, iv)
	stream.XORKeyStream(ciphertext[aes.BlockSize:], data)

	return base64.URLEncoding.EncodeToString(ciphertext), nil
}
