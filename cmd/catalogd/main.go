// Command catalogd serves the product catalog API.
//
//	@title                      Catalog API
//	@version                    1.0
//	@description                Product catalog (categories, groups, products, comments, likes) with token auth.
//	@BasePath                   /api/v1
//	@securityDefinitions.apikey BearerAuth
//	@in                         header
//	@name                       Authorization
//	@description                Type "Bearer" followed by a space and the access token.
package main

import "github.com/tbourn/go-catalog-backend/cmd/catalogd/commands"

func main() {
	commands.Execute()
}
