// get-refresh-token walks the installed-app OAuth flow once and prints
// the refresh token to configure the ads credentials with.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

const adsScope = "https://www.googleapis.com/auth/adwords"

func main() {
	var clientID, clientSecret string
	flag.StringVar(&clientID, "client-id", os.Getenv("GOOGLE_ADS_CLIENT_ID"), "OAuth client id")
	flag.StringVar(&clientSecret, "client-secret", os.Getenv("GOOGLE_ADS_CLIENT_SECRET"), "OAuth client secret")
	flag.Parse()

	if clientID == "" || clientSecret == "" {
		fmt.Fprintln(os.Stderr, "client id and secret are required (flags or GOOGLE_ADS_CLIENT_ID/GOOGLE_ADS_CLIENT_SECRET)")
		os.Exit(1)
	}

	oauthConfig := &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		Endpoint:     google.Endpoint,
		RedirectURL:  "urn:ietf:wg:oauth:2.0:oob",
		Scopes:       []string{adsScope},
	}

	url := oauthConfig.AuthCodeURL("state", oauth2.AccessTypeOffline, oauth2.ApprovalForce)
	fmt.Printf("Visit this URL and authorize the application:\n\n%s\n\n", url)
	fmt.Print("Paste the authorization code: ")

	reader := bufio.NewReader(os.Stdin)
	code, err := reader.ReadString('\n')
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to read authorization code: %v\n", err)
		os.Exit(1)
	}

	token, err := oauthConfig.Exchange(context.Background(), strings.TrimSpace(code))
	if err != nil {
		fmt.Fprintf(os.Stderr, "token exchange failed: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("\nRefresh token:\n%s\n", token.RefreshToken)
	fmt.Println("\nSet this as GOOGLE_ADS_REFRESH_TOKEN.")
}
