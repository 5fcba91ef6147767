// issue-token mints a bearer token for service accounts and operators. Token
// issuance normally lives in the identity service; this covers local dev and
// break-glass access.
//
// Usage:
//
//	API_SECRET=... TOKEN_HOUR_LIFESPAN=24 \
//	  go run ./cmd/issue-token -user-id 1 -name "Ops" -role admin
package main

import (
	"flag"
	"fmt"
	"os"

	"bitbucket.org/mmdatafocus/remit_backend/utils"
)

func main() {
	userId := flag.Int("user-id", 0, "User id embedded in the token")
	name := flag.String("name", "", "Display name embedded in the token")
	role := flag.String("role", "operator", "Role claim")
	flag.Parse()

	if *userId <= 0 || *name == "" {
		fmt.Fprintln(os.Stderr, "-user-id and -name are required")
		os.Exit(2)
	}

	token, err := utils.JwtGenerate(*userId, *name, *role)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to sign token: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(token)
}
