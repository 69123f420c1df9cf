package ledger

const claimerABI = `[
  {"type":"function","name":"priceOracle","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"address"}]},
  {"type":"function","name":"REGISTRATION_PERIOD","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]},
  {"type":"function","name":"oracle","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"address"}]},
  {"type":"function","name":"computeClaimId","stateMutability":"pure","inputs":[
    {"name":"claimed","type":"string"},{"name":"dnsname","type":"bytes"},
    {"name":"claimant","type":"address"},{"name":"email","type":"string"}],
   "outputs":[{"name":"","type":"bytes32"}]},
  {"type":"function","name":"claims","stateMutability":"view","inputs":[{"name":"","type":"bytes32"}],
   "outputs":[{"name":"labelHash","type":"bytes32"},{"name":"claimant","type":"address"},
              {"name":"paid","type":"uint256"},{"name":"status","type":"uint8"}]},
  {"type":"function","name":"submitExactClaim","stateMutability":"payable","inputs":[
    {"name":"name","type":"bytes"},{"name":"claimant","type":"address"},{"name":"email","type":"string"}],"outputs":[]},
  {"type":"function","name":"submitPrefixClaim","stateMutability":"payable","inputs":[
    {"name":"name","type":"bytes"},{"name":"claimant","type":"address"},{"name":"email","type":"string"}],"outputs":[]},
  {"type":"function","name":"submitCombinedClaim","stateMutability":"payable","inputs":[
    {"name":"name","type":"bytes"},{"name":"claimant","type":"address"},{"name":"email","type":"string"}],"outputs":[]},
  {"type":"function","name":"setClaimStatus","stateMutability":"nonpayable","inputs":[
    {"name":"claimId","type":"bytes32"},{"name":"approved","type":"bool"}],"outputs":[]},
  {"type":"function","name":"withdrawClaim","stateMutability":"nonpayable","inputs":[
    {"name":"claimId","type":"bytes32"}],"outputs":[]}
]`

const priceOracleABI = `[
  {"type":"function","name":"price","stateMutability":"view","inputs":[
    {"name":"name","type":"string"},{"name":"expires","type":"uint256"},{"name":"duration","type":"uint256"}],
   "outputs":[{"name":"","type":"uint256"}]}
]`

const dnssecOracleABI = `[
  {"type":"function","name":"submitRRSet","stateMutability":"nonpayable","inputs":[
    {"name":"input","type":"bytes"},{"name":"sig","type":"bytes"},{"name":"proof","type":"bytes"}],
   "outputs":[{"name":"","type":"bytes"}]}
]`
