package main

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/json"
	"log"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	defaultPort      = "8082"
	defaultLatencyMs = "50"
	maxBodyBytes     = 8 << 20
)

type CompareRequest struct {
	Reference string `json:"reference"`
	Image     []byte `json:"image"`
}

type CompareResponse struct {
	Confidence float64 `json:"confidence"`
	ComparedAt string  `json:"compared_at"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Code    int    `json:"code"`
}

var (
	latencyMs       = getEnvInt("LATENCY_MS", defaultLatencyMs)
	fixedConfidence = os.Getenv("FIXED_CONFIDENCE")
)

// Magic image payloads let local runs drive the verifier's failure paths.
const (
	imageStall = "STALL" // never answers before the caller gives up
	imageDown  = "DOWN"  // 503
	imageLow   = "LOW"   // confidence 10
	imageMatch = "MATCH" // confidence 99
)

func main() {
	port := getEnv("PORT", defaultPort)

	http.HandleFunc("/health", handleHealth)
	http.HandleFunc("/compare", handleCompare)

	log.Printf("Mock similarity oracle starting on port %s", port)
	log.Printf("Simulated latency: %dms", latencyMs)
	if fixedConfidence != "" {
		log.Printf("Fixed confidence: %s", fixedConfidence)
	}

	if err := http.ListenAndServe(":"+port, nil); err != nil {
		log.Fatal(err)
	}
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "healthy",
		"service": "similarity-oracle",
	})
}

func handleCompare(w http.ResponseWriter, r *http.Request) {
	time.Sleep(time.Duration(latencyMs) * time.Millisecond)

	if r.Method != http.MethodPost {
		sendError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req CompareRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		sendError(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}
	if req.Reference == "" || len(req.Image) == 0 {
		sendError(w, "reference and image are required", http.StatusBadRequest)
		return
	}

	var confidence float64
	switch strings.TrimSpace(string(req.Image)) {
	case imageStall:
		log.Printf("Stalling compare for %s", req.Reference)
		<-r.Context().Done()
		return
	case imageDown:
		sendError(w, "Oracle temporarily unavailable", http.StatusServiceUnavailable)
		return
	case imageLow:
		confidence = 10
	case imageMatch:
		confidence = 99
	default:
		confidence = score(req.Reference, req.Image)
	}

	writeJSON(w, http.StatusOK, CompareResponse{
		Confidence: confidence,
		ComparedAt: time.Now().UTC().Format(time.RFC3339),
	})
	log.Printf("Compared %s: confidence=%.1f", req.Reference, confidence)
}

// score is FIXED_CONFIDENCE when set, otherwise a deterministic value in [0, 100]
// derived from the reference and image.
func score(reference string, image []byte) float64 {
	if fixedConfidence != "" {
		if c, err := strconv.ParseFloat(fixedConfidence, 64); err == nil && c >= 0 && c <= 100 {
			return c
		}
	}
	h := sha256.New()
	h.Write([]byte(reference))
	h.Write(image)
	sum := h.Sum(nil)
	return float64(binary.BigEndian.Uint16(sum[:2])%1001) / 10
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("Failed to write response: %v", err)
	}
}

func sendError(w http.ResponseWriter, message string, code int) {
	writeJSON(w, code, ErrorResponse{
		Error:   http.StatusText(code),
		Message: message,
		Code:    code,
	})
	log.Printf("Error response: %d - %s", code, message)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key, defaultValue string) int {
	value := getEnv(key, defaultValue)
	intValue, err := strconv.Atoi(value)
	if err != nil {
		log.Printf("Invalid integer value for %s, using default: %s", key, defaultValue)
		intValue, _ = strconv.Atoi(defaultValue)
	}
	return intValue
}
