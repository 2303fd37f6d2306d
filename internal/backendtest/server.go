// Package backendtest runs an in-memory storefront backend that honors the
// REST contracts the session layer consumes. It exists for tests only.
package backendtest

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"seafood-storefront/internal/model"
)

var secret = []byte("backendtest-secret")

type account struct {
	password string
	user     model.User
}

type Server struct {
	*httptest.Server

	// RejectAll makes every protected endpoint answer 401.
	RejectAll atomic.Bool

	refreshCalls atomic.Int32

	mu            sync.Mutex
	accessTTL     time.Duration
	refreshGate   chan struct{}
	generation    int
	accounts      map[string]account
	refreshTokens map[string]string
	products      map[string]model.Product
	carts         map[string]*model.Cart
	failAdds      map[string]bool
	hits          map[string]int
}

func New() *Server {
	s := &Server{
		accessTTL:     15 * time.Minute,
		accounts:      map[string]account{},
		refreshTokens: map[string]string{},
		products:      map[string]model.Product{},
		carts:         map[string]*model.Cart{},
		failAdds:      map[string]bool{},
		hits:          map[string]int{},
	}
	s.Server = httptest.NewServer(s.routes())
	return s
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(s.count)

	r.Route("/api/auth", func(auth chi.Router) {
		auth.Post("/login", s.login)
		auth.Post("/register", s.register)
		auth.Post("/refresh-token", s.refresh)
		auth.Post("/logout", s.logout)
		auth.Post("/forgot-password", s.acknowledge)
		auth.Post("/reset-password", s.acknowledge)
		auth.With(s.requireAuth).Post("/logout-all", s.logoutAll)
		auth.With(s.requireAuth).Post("/change-password", s.acknowledge)
	})

	r.Get("/api/products/{id}", s.product)

	r.Route("/api/cart", func(cart chi.Router) {
		cart.Use(s.requireAuth)
		cart.Get("/", s.getCart)
		cart.Post("/add", s.addToCart)
		cart.Put("/update/{itemID}", s.updateCartItem)
		cart.Delete("/remove/{itemID}", s.removeCartItem)
		cart.Delete("/clear", s.clearCart)
	})

	return r
}

// HoldRefreshes blocks refresh requests until the returned func is called.
func (s *Server) HoldRefreshes() (release func()) {
	gate := make(chan struct{})
	s.mu.Lock()
	s.refreshGate = gate
	s.mu.Unlock()

	var once sync.Once
	return func() { once.Do(func() { close(gate) }) }
}

func (s *Server) SetAccessTTL(ttl time.Duration) {
	s.mu.Lock()
	s.accessTTL = ttl
	s.mu.Unlock()
}

// AddUser registers an account that can log in.
func (s *Server) AddUser(user model.User, password string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accounts[strings.ToLower(user.Email)] = account{password: password, user: user}
}

func (s *Server) AddProduct(p model.Product) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.products[p.ID] = p
}

// SeedCart places items directly into a user's server-side cart.
func (s *Server) SeedCart(userID string, productID string, quantity int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_ = s.addLocked(userID, productID, quantity)
}

// FailAddsFor makes add-to-cart for productID answer 500.
func (s *Server) FailAddsFor(productID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failAdds[productID] = true
}

func (s *Server) Cart(userID string) model.Cart {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cartLocked(userID).Clone()
}

// RevokeRefreshTokens drops every refresh token issued to userID, as a
// logout-all from another device would.
func (s *Server) RevokeRefreshTokens(userID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for tok, owner := range s.refreshTokens {
		if owner == userID {
			delete(s.refreshTokens, tok)
		}
	}
}

// ExpireAccessTokens invalidates every access token issued so far.
func (s *Server) ExpireAccessTokens() {
	s.mu.Lock()
	s.generation++
	s.mu.Unlock()
}

func (s *Server) RefreshCalls() int {
	return int(s.refreshCalls.Load())
}

// Hits reports how many requests reached "METHOD /path".
func (s *Server) Hits(method string, path string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hits[method+" "+path]
}

// IssueTokens mints a token pair for a registered user without a login call.
func (s *Server) IssueTokens(email string) model.TokenPair {
	s.mu.Lock()
	defer s.mu.Unlock()
	acct := s.accounts[strings.ToLower(email)]
	return s.issueLocked(acct.user)
}

func (s *Server) count(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		s.hits[r.Method+" "+r.URL.Path]++
		s.mu.Unlock()
		next.ServeHTTP(w, r)
	})
}

func (s *Server) issueLocked(user model.User) model.TokenPair {
	refresh := uuid.NewString()
	s.refreshTokens[refresh] = user.ID
	return model.TokenPair{AccessToken: s.signAccessLocked(user), RefreshToken: refresh}
}

func (s *Server) accessLocked(userID string) string {
	for _, acct := range s.accounts {
		if acct.user.ID == userID {
			return s.signAccessLocked(acct.user)
		}
	}
	return ""
}

func (s *Server) signAccessLocked(user model.User) string {
	claims := jwt.MapClaims{
		"id":    user.ID,
		"email": user.Email,
		"role":  user.Role,
		"gen":   s.generation,
		"jti":   uuid.NewString(),
		"exp":   time.Now().Add(s.accessTTL).Unix(),
	}
	signed, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
	return signed
}

type userKey struct{}

func (s *Server) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.RejectAll.Load() {
			writeFailure(w, http.StatusUnauthorized, "token rejected")
			return
		}

		header := r.Header.Get("Authorization")
		if !strings.HasPrefix(header, "Bearer ") {
			writeFailure(w, http.StatusUnauthorized, "missing token")
			return
		}

		claims := jwt.MapClaims{}
		_, err := jwt.ParseWithClaims(strings.TrimPrefix(header, "Bearer "), claims, func(*jwt.Token) (any, error) {
			return secret, nil
		}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
		if err != nil {
			writeFailure(w, http.StatusUnauthorized, "invalid token")
			return
		}

		gen, _ := claims["gen"].(float64)
		s.mu.Lock()
		current := s.generation
		s.mu.Unlock()
		if int(gen) != current {
			writeFailure(w, http.StatusUnauthorized, "token expired")
			return
		}

		userID, _ := claims["id"].(string)
		next.ServeHTTP(w, r.WithContext(contextWithUser(r, userID)))
	})
}

func (s *Server) login(w http.ResponseWriter, r *http.Request) {
	var req model.LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeFailure(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	s.mu.Lock()
	acct, ok := s.accounts[strings.ToLower(req.Email)]
	if !ok || acct.password != req.Password {
		s.mu.Unlock()
		writeFailure(w, http.StatusUnauthorized, "Invalid email or password")
		return
	}
	pair := s.issueLocked(acct.user)
	s.mu.Unlock()

	user := acct.user
	writeJSON(w, http.StatusOK, model.AuthResponse{Success: true, Message: "Login successful", AccessToken: pair.AccessToken, RefreshToken: pair.RefreshToken, User: &user})
}

func (s *Server) register(w http.ResponseWriter, r *http.Request) {
	var req model.RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Email == "" || req.Password == "" {
		writeFailure(w, http.StatusBadRequest, "email and password are required")
		return
	}

	s.mu.Lock()
	if _, exists := s.accounts[strings.ToLower(req.Email)]; exists {
		s.mu.Unlock()
		writeFailure(w, http.StatusConflict, "User already exists")
		return
	}
	user := model.User{ID: uuid.NewString(), Name: req.Name, Email: req.Email, Role: "user", Phone: req.Phone}
	s.accounts[strings.ToLower(req.Email)] = account{password: req.Password, user: user}
	pair := s.issueLocked(user)
	s.mu.Unlock()

	writeJSON(w, http.StatusCreated, model.AuthResponse{Success: true, Message: "Registration successful", AccessToken: pair.AccessToken, RefreshToken: pair.RefreshToken, User: &user})
}

func (s *Server) refresh(w http.ResponseWriter, r *http.Request) {
	s.refreshCalls.Add(1)
	s.mu.Lock()
	gate := s.refreshGate
	s.mu.Unlock()
	if gate != nil {
		<-gate
	}

	var req model.RefreshTokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeFailure(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	s.mu.Lock()
	userID, ok := s.refreshTokens[req.RefreshToken]
	var access string
	if ok {
		access = s.accessLocked(userID)
	}
	s.mu.Unlock()

	if !ok || access == "" {
		writeFailure(w, http.StatusUnauthorized, "Invalid refresh token")
		return
	}
	writeJSON(w, http.StatusOK, model.AuthResponse{Success: true, AccessToken: access})
}

func (s *Server) logout(w http.ResponseWriter, r *http.Request) {
	var req model.RefreshTokenRequest
	_ = json.NewDecoder(r.Body).Decode(&req)

	s.mu.Lock()
	delete(s.refreshTokens, req.RefreshToken)
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, model.AuthResponse{Success: true, Message: "Logged out"})
}

func (s *Server) logoutAll(w http.ResponseWriter, r *http.Request) {
	s.RevokeRefreshTokens(userFrom(r))
	writeJSON(w, http.StatusOK, model.AuthResponse{Success: true, Message: "Logged out from all devices"})
}

func (s *Server) acknowledge(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, model.AuthResponse{Success: true, Message: "ok"})
}

func (s *Server) product(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	p, ok := s.products[chi.URLParam(r, "id")]
	s.mu.Unlock()

	if !ok {
		writeFailure(w, http.StatusNotFound, "Product not found")
		return
	}
	writeJSON(w, http.StatusOK, model.BackendResponse[model.Product]{Success: true, Data: p})
}

func (s *Server) getCart(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	cart := s.cartLocked(userFrom(r)).Clone()
	s.mu.Unlock()
	writeCart(w, cart)
}

func (s *Server) addToCart(w http.ResponseWriter, r *http.Request) {
	var req model.AddToCartRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.ProductID == "" || req.Quantity < 1 {
		writeFailure(w, http.StatusBadRequest, "productId and a positive quantity are required")
		return
	}

	s.mu.Lock()
	if s.failAdds[req.ProductID] {
		s.mu.Unlock()
		writeFailure(w, http.StatusInternalServerError, "add failed")
		return
	}
	if err := s.addLocked(userFrom(r), req.ProductID, req.Quantity); err != nil {
		s.mu.Unlock()
		writeFailure(w, http.StatusNotFound, err.Error())
		return
	}
	cart := s.cartLocked(userFrom(r)).Clone()
	s.mu.Unlock()
	writeCart(w, cart)
}

func (s *Server) updateCartItem(w http.ResponseWriter, r *http.Request) {
	var req model.UpdateCartItemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Quantity < 1 {
		writeFailure(w, http.StatusBadRequest, "quantity must be at least 1")
		return
	}

	s.mu.Lock()
	cart := s.cartLocked(userFrom(r))
	idx, ok := cart.Find(chi.URLParam(r, "itemID"))
	if !ok {
		s.mu.Unlock()
		writeFailure(w, http.StatusNotFound, "Item not found in cart")
		return
	}
	cart.Items[idx].Quantity = req.Quantity
	cart.UpdatedAt = time.Now().UTC()
	out := cart.Clone()
	s.mu.Unlock()
	writeCart(w, out)
}

func (s *Server) removeCartItem(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	cart := s.cartLocked(userFrom(r))
	idx, ok := cart.Find(chi.URLParam(r, "itemID"))
	if !ok {
		s.mu.Unlock()
		writeFailure(w, http.StatusNotFound, "Item not found in cart")
		return
	}
	cart.Items = append(cart.Items[:idx], cart.Items[idx+1:]...)
	cart.UpdatedAt = time.Now().UTC()
	out := cart.Clone()
	s.mu.Unlock()
	writeCart(w, out)
}

func (s *Server) clearCart(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	cart := s.cartLocked(userFrom(r))
	cart.Items = []model.CartItem{}
	cart.UpdatedAt = time.Now().UTC()
	out := cart.Clone()
	s.mu.Unlock()
	writeCart(w, out)
}

func (s *Server) cartLocked(userID string) *model.Cart {
	cart, ok := s.carts[userID]
	if !ok {
		cart = &model.Cart{User: userID, Items: []model.CartItem{}, UpdatedAt: time.Now().UTC()}
		s.carts[userID] = cart
	}
	return cart
}

func (s *Server) addLocked(userID string, productID string, quantity int) error {
	p, ok := s.products[productID]
	if !ok {
		return errors.New("product not found")
	}

	cart := s.cartLocked(userID)
	now := time.Now().UTC()
	if idx, found := cart.FindByProduct(productID); found {
		cart.Items[idx].Quantity += quantity
	} else {
		cart.Items = append(cart.Items, model.CartItem{
			ID:       uuid.NewString(),
			Product:  model.Embedded(p),
			Quantity: quantity,
			AddedAt:  now,
		})
	}
	cart.UpdatedAt = now
	return nil
}

func writeCart(w http.ResponseWriter, cart model.Cart) {
	writeJSON(w, http.StatusOK, model.BackendResponse[model.Cart]{Success: true, Data: cart})
}

func writeFailure(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]any{"success": false, "message": message})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
