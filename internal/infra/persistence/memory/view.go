package memory

type transactionView struct {
	state *memoryState
}

func newTransactionView(state *memoryState) TransactionView {
	return transactionView{state: state}
}

func (v transactionView) ListTerritories() []Territory {
	return listSorted(v.state.territories, cloneTerritory)
}

func (v transactionView) ListAddresses() []Address {
	return listSorted(v.state.addresses, cloneAddress)
}

func (v transactionView) ListHouses() []House {
	return listSorted(v.state.houses, cloneHouse)
}

func (v transactionView) ListVisits() []Visit {
	return listSorted(v.state.visits, cloneVisit)
}

func (v transactionView) ListTokens() []Token {
	return listSorted(v.state.tokens, cloneToken)
}

func (v transactionView) ListTokenTerritories() []TokenTerritory {
	return listSorted(v.state.tokenTerritories, cloneTokenTerritory)
}

func (v transactionView) ListPhoneTerritories() []PhoneTerritory {
	return listSorted(v.state.phoneTerritories, clonePhoneTerritory)
}

func (v transactionView) ListPhoneNumbers() []PhoneNumber {
	return listSorted(v.state.phoneNumbers, clonePhoneNumber)
}

func (v transactionView) ListPhoneCalls() []PhoneCall {
	return listSorted(v.state.phoneCalls, clonePhoneCall)
}

func (v transactionView) ListUserTokens() []UserToken {
	return listSorted(v.state.userTokens, cloneUserToken)
}

func (v transactionView) ListRecalls() []Recall {
	return listSorted(v.state.recalls, cloneRecall)
}

func (v transactionView) FindTerritory(id string) (Territory, bool) {
	return find(v.state.territories, id, cloneTerritory)
}

func (v transactionView) FindAddress(id string) (Address, bool) {
	return find(v.state.addresses, id, cloneAddress)
}

func (v transactionView) FindHouse(id string) (House, bool) {
	return find(v.state.houses, id, cloneHouse)
}

func (v transactionView) FindVisit(id string) (Visit, bool) {
	return find(v.state.visits, id, cloneVisit)
}

func (v transactionView) FindToken(id string) (Token, bool) {
	return find(v.state.tokens, id, cloneToken)
}

func (v transactionView) FindPhoneTerritory(id string) (PhoneTerritory, bool) {
	return find(v.state.phoneTerritories, id, clonePhoneTerritory)
}

func (v transactionView) FindPhoneNumber(id string) (PhoneNumber, bool) {
	return find(v.state.phoneNumbers, id, clonePhoneNumber)
}

func (v transactionView) FindPhoneCall(id string) (PhoneCall, bool) {
	return find(v.state.phoneCalls, id, clonePhoneCall)
}

func (v transactionView) FindUserToken(id string) (UserToken, bool) {
	return find(v.state.userTokens, id, cloneUserToken)
}

func (v transactionView) FindRecall(userID, houseID string) (Recall, bool) {
	return find(v.state.recalls, Recall{UserID: userID, HouseID: houseID}.Key(), cloneRecall)
}
