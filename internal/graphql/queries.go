package graphql

// Operation names. CreateUser must match interceptor.OpCreateUser.
const (
	OpGetCart         = "GET_CART"
	OpAddToCart       = "ADD_TO_CART"
	OpUpdateCartItems = "UPDATE_CART"
	OpProducts        = "Products"
	OpCategories      = "Categories"
	OpCreateUser      = "CreateUser"
	OpLogin           = "Login"
)

const imageFields = `
fragment ImageFields on MediaItem {
  id
  sourceUrl
  altText
  title
}
`

const cartFields = `
fragment CartFields on Cart {
  contents {
    itemCount
    nodes {
      key
      quantity
      total
      subtotal
      product {
        node {
          id
          databaseId
          name
          slug
          type
          image { ...ImageFields }
          ... on ProductWithPricing { price regularPrice salePrice }
        }
      }
      variation {
        node {
          id
          databaseId
          name
          type
          image { ...ImageFields }
          ... on ProductWithPricing { price regularPrice salePrice }
          attributes { nodes { id attributeId name value } }
        }
      }
    }
  }
  subtotal
  total
}
` + imageFields

const getCartQuery = `
query GET_CART {
  cart { ...CartFields }
}
` + cartFields

const addToCartMutation = `
mutation ADD_TO_CART($input: AddToCartInput!) {
  addToCart(input: $input) {
    cart { ...CartFields }
  }
}
` + cartFields

const updateCartMutation = `
mutation UPDATE_CART($input: UpdateItemQuantitiesInput!) {
  updateItemQuantities(input: $input) {
    cart { ...CartFields }
  }
}
` + cartFields

const productsQuery = `
query Products($first: Int, $after: String, $where: RootQueryToProductUnionConnectionWhereArgs) {
  products(first: $first, after: $after, where: $where) {
    pageInfo { hasNextPage endCursor }
    nodes {
      id
      databaseId
      name
      slug
      type
      averageRating
      reviewCount
      image { ...ImageFields }
      ... on ProductWithPricing { price regularPrice salePrice }
      ... on InventoriedProduct { stockStatus stockQuantity }
      productCategories { nodes { databaseId name slug } }
      productBrand: terms(where: { taxonomies: [PRODUCTBRAND] }) { nodes { name slug } }
      productLocation: terms(where: { taxonomies: [PRODUCTLOCATION] }) { nodes { name slug } }
      attributes { nodes { name options } }
    }
  }
}
` + imageFields

const categoriesQuery = `
query Categories {
  productCategories(first: 100) {
    nodes {
      id
      databaseId
      name
      slug
      parent { node { databaseId } }
      image { id sourceUrl altText }
    }
  }
}
`

const createUserMutation = `
mutation CreateUser($input: RegisterCustomerInput!) {
  registerCustomer(input: $input) {
    authToken
    refreshToken
    customer { id databaseId email firstName lastName }
  }
}
`

const loginMutation = `
mutation Login($input: LoginInput!) {
  login(input: $input) {
    authToken
    refreshToken
    customer { id databaseId email firstName lastName }
  }
}
`
